package streaming

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"studiocast/internal/core/domain"
	"studiocast/internal/infrastructure/monitoring"
	"studiocast/internal/infrastructure/secrets"
	apperrors "studiocast/pkg/errors"
)

type fakeStdin struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (f *fakeStdin) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	return f.buf.Write(p)
}

func (f *fakeStdin) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStdin) bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.buf.Bytes()...)
}

func (f *fakeStdin) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeHandle is a controllable encoder process. Tests feed stderr through a
// pipe and release Wait by closing exitCh.
type fakeHandle struct {
	stdin   *fakeStdin
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	mu      sync.Mutex
	signals []os.Signal
	exitCh  chan error
}

func newFakeHandle() *fakeHandle {
	r, w := io.Pipe()
	return &fakeHandle{
		stdin:   &fakeStdin{},
		stderrR: r,
		stderrW: w,
		exitCh:  make(chan error, 1),
	}
}

func (h *fakeHandle) Stdin() io.WriteCloser { return h.stdin }
func (h *fakeHandle) Stderr() io.Reader     { return h.stderrR }

func (h *fakeHandle) Signal(sig os.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, sig)
	return nil
}

func (h *fakeHandle) Wait() error {
	return <-h.exitCh
}

func (h *fakeHandle) exit(err error) {
	h.stderrW.Close()
	h.exitCh <- err
}

func (h *fakeHandle) signalled() []os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]os.Signal(nil), h.signals...)
}

type fakeRunner struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	binary   string
	args     []string
	startErr error
}

func (r *fakeRunner) Start(name string, args []string) (ProcessHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	r.binary = name
	r.args = append([]string(nil), args...)
	h := newFakeHandle()
	r.handles = append(r.handles, h)
	return h, nil
}

func (r *fakeRunner) lastHandle() *fakeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.handles) == 0 {
		return nil
	}
	return r.handles[len(r.handles)-1]
}

func testConfig() Config {
	return Config{
		Binary: "ffmpeg",
		PlatformURLs: map[domain.Platform]string{
			domain.PlatformYouTube: "rtmp://a.rtmp.youtube.com/live2/",
			domain.PlatformTwitch:  "rtmp://live.twitch.tv/app/",
		},
		Defaults: domain.VideoConfig{
			Width:        1280,
			Height:       720,
			Framerate:    30,
			VideoBitrate: "2500k",
			AudioBitrate: "128k",
		},
		MaxRecentErrors: 3,
	}
}

func newTestManager(t *testing.T, runner ProcessRunner) (*Manager, *secrets.MemorySecretStore) {
	t.Helper()
	store := secrets.NewMemorySecretStore()
	store.Set("key-ref", "live_abc123")
	m := NewManager(testConfig(), runner, store, monitoring.NopRecorder{}, zap.NewNop())
	return m, store
}

var jpegFrame = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x01}

func TestStartStreamSpawnsEncoder(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	err := m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{})
	require.NoError(t, err)

	assert.Equal(t, "ffmpeg", runner.binary)
	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/live_abc123", runner.args[len(runner.args)-1])
	assert.Contains(t, runner.args, "image2pipe")
	assert.Contains(t, runner.args, "libx264")
	assert.Contains(t, runner.args, "zerolatency")
	assert.Contains(t, runner.args, "2500k")

	status := m.Status("room-1")
	assert.True(t, status.Active)
	assert.Equal(t, domain.StreamStatusStarting, status.Status)
}

func TestEncoderArgsUseGopOfTwiceFramerate(t *testing.T) {
	args := encoderArgs(domain.VideoConfig{Framerate: 25, VideoBitrate: "2500k", AudioBitrate: "128k"}, "rtmp://host/app/key")

	var gop string
	for i, a := range args {
		if a == "-g" {
			gop = args[i+1]
		}
	}
	assert.Equal(t, "50", gop)
}

func TestStartStreamUnsupportedPlatform(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	err := m.StartStream(context.Background(), "room-1", "dailymotion", "key-ref", domain.VideoConfig{})
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, appErr.Code)
	assert.Nil(t, runner.lastHandle())
}

func TestStartStreamMissingSecret(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	err := m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "no-such-ref", domain.VideoConfig{})
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
}

func TestStartStreamRejectsUnsafeKey(t *testing.T) {
	runner := &fakeRunner{}
	m, store := newTestManager(t, runner)
	store.Set("evil-ref", "key;rm -rf /")

	err := m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "evil-ref", domain.VideoConfig{})
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeUnsafeInput, appErr.Code)
	// The encoder must never be spawned with a hostile argument.
	assert.Nil(t, runner.lastHandle())
}

func TestStartStreamRejectsUnsafeVideoConfig(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	err := m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref",
		domain.VideoConfig{VideoBitrate: "2500k;whoami"})
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeUnsafeInput, appErr.Code)
	assert.Nil(t, runner.lastHandle())

	err = m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref",
		domain.VideoConfig{AudioBitrate: "128k|cat"})
	appErr = apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeUnsafeInput, appErr.Code)
	assert.Nil(t, runner.lastHandle())
}

func TestStartStreamTwiceRejected(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	require.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))

	err := m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{})
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeAlreadyStreaming, appErr.Code)
}

func TestStderrProgressFlipsLive(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	require.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))
	handle := runner.lastHandle()

	go io.WriteString(handle.stderrW, "frame=  120 fps= 30 q=23.0 size=512kB\n")

	assert.Eventually(t, func() bool {
		return m.Status("room-1").Status == domain.StreamStatusLive
	}, time.Second, 5*time.Millisecond)
}

func TestStderrRejectionFlipsError(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	var changes []domain.StreamStatusChange
	var mu sync.Mutex
	m.OnStatusChange(func(c domain.StreamStatusChange) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})

	require.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))
	handle := runner.lastHandle()

	go io.WriteString(handle.stderrW, "rtmp://a.rtmp.youtube.com: Connection refused\n")

	assert.Eventually(t, func() bool {
		s := m.Status("room-1")
		return s.Status == domain.StreamStatusError && len(s.RecentErrors) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, changes)
	assert.Equal(t, domain.StreamStatusError, changes[len(changes)-1].NewStatus)
}

func TestRejectionEmittedJustBeforeExitIsRecorded(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	var mu sync.Mutex
	var statuses []domain.StreamStatus
	m.OnStatusChange(func(c domain.StreamStatusChange) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, c.NewStatus)
	})

	require.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))
	handle := runner.lastHandle()

	// The ingest rejects the stream and the encoder dies immediately after
	// its last diagnostic line. The error transition must still be observed
	// before the exit handler reports stopped.
	_, err := io.WriteString(handle.stderrW, "rtmp://a.rtmp.youtube.com: Connection refused\n")
	require.NoError(t, err)
	handle.exit(nil)

	require.Eventually(t, func() bool {
		return !m.Status("room-1").Active
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.StreamStatus{domain.StreamStatusError, domain.StreamStatusStopped}, statuses)
}

func TestRecentErrorsBounded(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	require.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))

	for i := 0; i < 10; i++ {
		m.recordError("room-1", "Server returned 403 Forbidden")
	}

	status := m.Status("room-1")
	assert.Len(t, status.RecentErrors, 3)
}

func TestSendFrameValidation(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	require.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))
	handle := runner.lastHandle()

	m.SendFrame("room-1", jpegFrame)
	m.SendFrame("room-1", []byte{0x00, 0x01, 0x02})
	m.SendFrame("room-1", []byte{0xFF})
	m.SendFrame("room-other", jpegFrame)

	assert.Equal(t, jpegFrame, handle.stdin.bytes())
}

func TestStopStreamSignalsButDoesNotDestroy(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	require.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))
	handle := runner.lastHandle()

	m.StopStream("room-1")

	assert.True(t, handle.stdin.isClosed())
	require.Len(t, handle.signalled(), 1)

	// The session survives until the process actually exits.
	assert.True(t, m.Status("room-1").Active)

	handle.exit(nil)

	assert.Eventually(t, func() bool {
		return !m.Status("room-1").Active
	}, time.Second, 5*time.Millisecond)
}

func TestExitIsTheOnlyDestructionPoint(t *testing.T) {
	runner := &fakeRunner{}
	m, _ := newTestManager(t, runner)

	require.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))
	handle := runner.lastHandle()

	handle.exit(nil)

	assert.Eventually(t, func() bool {
		return !m.Status("room-1").Active
	}, time.Second, 5*time.Millisecond)

	// A new stream for the same room may start once the old one is gone.
	assert.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))
}

func TestStreamKeyNeverLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	store := secrets.NewMemorySecretStore()
	store.Set("key-ref", "live_supersecret")

	runner := &fakeRunner{}
	m := NewManager(testConfig(), runner, store, monitoring.NopRecorder{}, zap.New(core))

	require.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))
	m.StopStream("room-1")
	runner.lastHandle().exit(nil)

	assert.Eventually(t, func() bool {
		return !m.Status("room-1").Active
	}, time.Second, 5*time.Millisecond)

	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, "live_supersecret")
		for _, field := range entry.Context {
			assert.NotContains(t, field.String, "live_supersecret")
		}
	}
}

func TestSpawnFailureReportedNotThrown(t *testing.T) {
	runner := &fakeRunner{startErr: io.ErrUnexpectedEOF}
	m, _ := newTestManager(t, runner)

	err := m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{})
	assert.NoError(t, err)

	// The failed session is torn down; a retry is possible.
	assert.False(t, m.Status("room-1").Active)
	runner.startErr = nil
	assert.NoError(t, m.StartStream(context.Background(), "room-1", domain.PlatformYouTube, "key-ref", domain.VideoConfig{}))
}

func TestStatusUnknownRoom(t *testing.T) {
	m, _ := newTestManager(t, &fakeRunner{})
	status := m.Status("nope")
	assert.False(t, status.Active)
	assert.Empty(t, status.RecentErrors)
}
