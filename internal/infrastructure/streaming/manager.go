package streaming

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"
	apperrors "studiocast/pkg/errors"
	"studiocast/pkg/utils"
	"studiocast/pkg/validation"
)

const maxErrorMessageLen = 200

// streamSession is one live encoder process bound to a room. Destroyed only
// by the exit handler, so status and uptime stay queryable while the process
// is shutting down.
type streamSession struct {
	process   ProcessHandle
	platform  domain.Platform
	status    domain.StreamStatus
	startedAt time.Time
	errors    []domain.StreamError
	stdinErr  bool
}

// Manager implements ports.StreamManager on top of an external encoder
// process per room. Frames arrive as JPEG buffers and are piped to the
// encoder's stdin; liveness and ingest rejection are inferred from stderr.
type Manager struct {
	cfg     Config
	runner  ProcessRunner
	secrets ports.SecretStore
	metrics ports.MetricsRecorder
	logger  *zap.Logger

	mu        sync.Mutex
	sessions  map[domain.RoomID]*streamSession
	callbacks []func(domain.StreamStatusChange)
}

func NewManager(cfg Config, runner ProcessRunner, secrets ports.SecretStore, metrics ports.MetricsRecorder, logger *zap.Logger) *Manager {
	if cfg.MaxRecentErrors <= 0 {
		cfg.MaxRecentErrors = 10
	}
	return &Manager{
		cfg:      cfg,
		runner:   runner,
		secrets:  secrets,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[domain.RoomID]*streamSession),
	}
}

// OnStatusChange registers a subscriber for status transitions. Must be
// called before streams are started.
func (m *Manager) OnStatusChange(fn func(domain.StreamStatusChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// StartStream resolves the platform and stream key, spawns the encoder and
// registers the session. The stream key is never logged and never appears in
// any error returned to the caller.
func (m *Manager) StartStream(ctx context.Context, roomID domain.RoomID, platform domain.Platform, streamKeyRef string, vc domain.VideoConfig) error {
	baseURL, err := m.cfg.ingestBaseURL(platform)
	if err != nil {
		return apperrors.NewInvalidInputError("unsupported streaming platform: " + string(platform))
	}
	if err := validation.ValidateIngestURL(baseURL); err != nil {
		return apperrors.NewUnsafeInputError("ingest URL")
	}

	streamKey, err := m.secrets.GetSecret(ctx, streamKeyRef)
	if err != nil {
		return apperrors.NewNotFoundError("stream key")
	}
	if err := validation.AssertSafeString(streamKey, "stream key"); err != nil {
		return apperrors.NewUnsafeInputError("stream key")
	}

	vc = m.cfg.applyDefaults(vc)
	if err := validation.AssertSafeString(vc.VideoBitrate, "video bitrate"); err != nil {
		return apperrors.NewUnsafeInputError("video bitrate")
	}
	if err := validation.AssertSafeString(vc.AudioBitrate, "audio bitrate"); err != nil {
		return apperrors.NewUnsafeInputError("audio bitrate")
	}

	m.mu.Lock()
	if _, exists := m.sessions[roomID]; exists {
		m.mu.Unlock()
		return apperrors.NewAlreadyStreamingError()
	}
	sess := &streamSession{
		platform:  platform,
		status:    domain.StreamStatusStarting,
		startedAt: utils.Now(),
	}
	m.sessions[roomID] = sess
	m.mu.Unlock()

	args := encoderArgs(vc, baseURL+streamKey)

	handle, err := m.runner.Start(m.cfg.Binary, args)
	if err != nil {
		m.logger.Error("encoder spawn failed",
			zap.String("room_id", string(roomID)),
			zap.String("platform", string(platform)),
			zap.Error(err))
		m.recordError(roomID, "encoder spawn failed: "+err.Error())
		m.setStatus(roomID, domain.StreamStatusError)
		m.destroySession(roomID)
		return nil
	}

	m.mu.Lock()
	sess.process = handle
	m.mu.Unlock()

	m.logger.Info("stream started",
		zap.String("room_id", string(roomID)),
		zap.String("platform", string(platform)),
		zap.Int("framerate", vc.Framerate),
		zap.String("video_bitrate", vc.VideoBitrate))

	stderrDone := make(chan struct{})
	go m.scanStderr(roomID, handle, stderrDone)
	go m.awaitExit(roomID, handle, stderrDone)

	return nil
}

// encoderArgs builds the encoder argument vector. Arguments are passed as a
// discrete slice so the stream key never meets a shell.
func encoderArgs(vc domain.VideoConfig, ingestURL string) []string {
	framerate := strconv.Itoa(vc.Framerate)
	return []string{
		"-f", "image2pipe",
		"-framerate", framerate,
		"-i", "pipe:0",

		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=48000",

		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-r", framerate,
		"-g", strconv.Itoa(vc.Framerate * 2),
		"-b:v", vc.VideoBitrate,

		"-c:a", "aac",
		"-b:a", vc.AudioBitrate,
		"-ar", "48000",

		"-f", "flv",
		ingestURL,
	}
}

// SendFrame pipes one JPEG frame to the room's encoder. Frames for unknown
// rooms and buffers without the JPEG magic bytes are dropped silently.
func (m *Manager) SendFrame(roomID domain.RoomID, frame []byte) {
	if len(frame) < 2 || frame[0] != 0xFF || frame[1] != 0xD8 {
		m.metrics.RecordFrameDropped(roomID)
		return
	}

	m.mu.Lock()
	sess, ok := m.sessions[roomID]
	if !ok || sess.process == nil || sess.stdinErr {
		m.mu.Unlock()
		m.metrics.RecordFrameDropped(roomID)
		return
	}
	stdin := sess.process.Stdin()
	m.mu.Unlock()

	if _, err := stdin.Write(frame); err != nil {
		m.mu.Lock()
		if s, ok := m.sessions[roomID]; ok {
			s.stdinErr = true
		}
		m.mu.Unlock()
		m.metrics.RecordFrameDropped(roomID)
		return
	}
	m.metrics.RecordFrameForwarded(roomID, len(frame))
}

// StopStream closes the encoder's stdin and signals it to terminate. The
// session itself is removed by the exit handler once the process is gone.
func (m *Manager) StopStream(roomID domain.RoomID) {
	m.mu.Lock()
	sess, ok := m.sessions[roomID]
	if !ok || sess.process == nil {
		m.mu.Unlock()
		return
	}
	process := sess.process
	m.mu.Unlock()

	if err := process.Stdin().Close(); err != nil {
		m.logger.Debug("encoder stdin close", zap.String("room_id", string(roomID)), zap.Error(err))
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		m.logger.Debug("encoder signal", zap.String("room_id", string(roomID)), zap.Error(err))
	}
}

// Status reports the room's stream state, or Active=false when no session
// exists.
func (m *Manager) Status(roomID domain.RoomID) domain.StreamStatusReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[roomID]
	if !ok {
		return domain.StreamStatusReport{Active: false}
	}

	errs := make([]domain.StreamError, len(sess.errors))
	copy(errs, sess.errors)

	return domain.StreamStatusReport{
		Active:       true,
		Status:       sess.status,
		UptimeMs:     utils.Now().Sub(sess.startedAt).Milliseconds(),
		RecentErrors: errs,
	}
}

// scanStderr watches encoder diagnostics. A progress line means frames are
// reaching the ingest; connection errors from the ingest flip the session to
// error without killing the process.
func (m *Manager) scanStderr(roomID domain.RoomID, handle ProcessHandle, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(handle.Stderr())
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "frame=") {
			m.setStatus(roomID, domain.StreamStatusLive)
		}
		if strings.Contains(line, "Connection refused") || strings.Contains(line, "Server returned") {
			m.logger.Warn("ingest rejected stream",
				zap.String("room_id", string(roomID)),
				zap.String("detail", truncate(line, maxErrorMessageLen)))
			m.recordError(roomID, "RTMP connection failed: "+truncate(line, maxErrorMessageLen))
			m.setStatus(roomID, domain.StreamStatusError)
		}
	}
}

// awaitExit is the single place a stream session is destroyed. Wait must not
// run until the stderr scanner has drained the pipe, or the encoder's final
// rejection lines would be lost when Wait closes it.
func (m *Manager) awaitExit(roomID domain.RoomID, handle ProcessHandle, stderrDone <-chan struct{}) {
	<-stderrDone
	err := handle.Wait()
	m.logger.Info("encoder exited",
		zap.String("room_id", string(roomID)),
		zap.Error(err))

	m.setStatus(roomID, domain.StreamStatusStopped)
	m.destroySession(roomID)
}

func (m *Manager) destroySession(roomID domain.RoomID) {
	m.mu.Lock()
	delete(m.sessions, roomID)
	m.mu.Unlock()
}

func (m *Manager) recordError(roomID domain.RoomID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[roomID]
	if !ok {
		return
	}
	sess.errors = append(sess.errors, domain.StreamError{
		Message:   truncate(message, maxErrorMessageLen),
		Timestamp: utils.Now(),
	})
	if len(sess.errors) > m.cfg.MaxRecentErrors {
		sess.errors = sess.errors[len(sess.errors)-m.cfg.MaxRecentErrors:]
	}
}

// setStatus applies a transition and notifies subscribers. Callbacks run
// outside the lock.
func (m *Manager) setStatus(roomID domain.RoomID, status domain.StreamStatus) {
	m.mu.Lock()
	sess, ok := m.sessions[roomID]
	if !ok || sess.status == status {
		m.mu.Unlock()
		return
	}
	old := sess.status
	sess.status = status
	callbacks := make([]func(domain.StreamStatusChange), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	m.metrics.RecordStreamStatus(roomID, status)

	change := domain.StreamStatusChange{RoomID: roomID, OldStatus: old, NewStatus: status}
	for _, fn := range callbacks {
		fn(change)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
