package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"
	"studiocast/pkg/validation"
)

// FileSink appends recording chunks to per-participant files on local disk.
// The real merge/upload pipeline lives behind the same port in production;
// this implementation exists for single-node deployments and tests.
type FileSink struct {
	root    string
	baseURL string

	mu     sync.Mutex
	counts map[string]int
}

func NewFileSink(root, baseURL string) (*FileSink, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare recording root: %w", err)
	}
	return &FileSink{
		root:    absRoot,
		baseURL: baseURL,
		counts:  make(map[string]int),
	}, nil
}

func (s *FileSink) Put(ctx context.Context, sessionID domain.SessionID, participantID domain.UserID, chunk []byte) (string, error) {
	if err := validation.ValidateUserID(string(participantID)); err != nil {
		return "", err
	}
	if err := validation.ValidateRoomID(string(sessionID)); err != nil {
		return "", err
	}
	if len(chunk) == 0 {
		return "", fmt.Errorf("empty chunk")
	}

	dir := filepath.Join(s.root, string(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare session directory: %w", err)
	}

	s.mu.Lock()
	key := string(sessionID) + "/" + string(participantID)
	index := s.counts[key]
	s.counts[key] = index + 1
	s.mu.Unlock()

	name := fmt.Sprintf("%s_%06d.webm", participantID, index)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, chunk, 0o644); err != nil {
		return "", fmt.Errorf("failed to write chunk: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", s.baseURL, sessionID, name), nil
}

var _ ports.RecordingSink = (*FileSink)(nil)
