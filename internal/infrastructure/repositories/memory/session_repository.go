package memory

import (
	"context"
	"sync"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"
)

// MemorySessionRepository is an in-process stand-in for the external session
// document store, used in development and tests.
type MemorySessionRepository struct {
	sessions map[domain.SessionID]*domain.Session
	mu       sync.RWMutex
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.Session),
	}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return domain.ErrSessionExists
	}

	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *MemorySessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	return cloneSession(session), nil
}

func (r *MemorySessionRepository) GetByRoomID(ctx context.Context, roomID domain.RoomID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, session := range r.sessions {
		if session.RoomID == roomID {
			return cloneSession(session), nil
		}
	}

	return nil, domain.ErrSessionNotFound
}

func (r *MemorySessionRepository) Update(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; !exists {
		return domain.ErrSessionNotFound
	}

	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func cloneSession(session *domain.Session) *domain.Session {
	clone := *session
	clone.Participants = append([]domain.UserID(nil), session.Participants...)
	return &clone
}
