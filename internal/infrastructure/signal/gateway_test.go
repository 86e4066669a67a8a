package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"
	"studiocast/internal/core/services"
	"studiocast/internal/infrastructure/monitoring"
	registrymemory "studiocast/internal/infrastructure/registry/memory"
	repomemory "studiocast/internal/infrastructure/repositories/memory"
)

type fakeStreamManager struct {
	mu     sync.Mutex
	frames map[domain.RoomID][][]byte
	stops  []domain.RoomID
}

func newFakeStreamManager() *fakeStreamManager {
	return &fakeStreamManager{frames: make(map[domain.RoomID][][]byte)}
}

func (f *fakeStreamManager) StartStream(ctx context.Context, roomID domain.RoomID, platform domain.Platform, streamKeyRef string, cfg domain.VideoConfig) error {
	return nil
}

func (f *fakeStreamManager) SendFrame(roomID domain.RoomID, frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[roomID] = append(f.frames[roomID], frame)
}

func (f *fakeStreamManager) StopStream(roomID domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, roomID)
}

func (f *fakeStreamManager) Status(roomID domain.RoomID) domain.StreamStatusReport {
	return domain.StreamStatusReport{}
}

func (f *fakeStreamManager) OnStatusChange(fn func(domain.StreamStatusChange)) {}

func (f *fakeStreamManager) frameCount(roomID domain.RoomID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames[roomID])
}

type gatewayFixture struct {
	gateway  *Gateway
	streams  *fakeStreamManager
	registry ports.RoomRegistry
	sessions ports.SessionRepository
	server   *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	registry := registrymemory.NewMemoryRoomRegistry()
	sessions := repomemory.NewMemorySessionRepository()
	streams := newFakeStreamManager()

	gw := NewGateway(GatewayConfig{
		PingInterval:    time.Minute,
		PongTimeout:     time.Minute,
		ReadTimeout:     time.Minute,
		WriteTimeout:    5 * time.Second,
		EventsPerSecond: 1000,
		EventBurst:      1000,
	}, nil, streams, monitoring.NopRecorder{}, zap.NewNop())

	lifecycle := services.NewLifecycleService(
		registry, sessions, gw, streams, monitoring.NopRecorder{},
		5*time.Minute, zap.NewNop().Sugar())
	gw.SetLifecycle(lifecycle)

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWebSocket))
	t.Cleanup(server.Close)

	return &gatewayFixture{
		gateway:  gw,
		streams:  streams,
		registry: registry,
		sessions: sessions,
		server:   server,
	}
}

func (f *gatewayFixture) seedSession(t *testing.T, id domain.SessionID, roomID domain.RoomID, host domain.UserID) {
	t.Helper()
	require.NoError(t, f.sessions.Create(context.Background(), &domain.Session{
		ID:           id,
		RoomID:       roomID,
		Host:         host,
		Title:        "weekly show",
		Status:       domain.SessionStatusScheduled,
		ScheduledFor: time.Now(),
	}))
}

// connect dials the gateway and consumes the connected handshake, returning
// the channel id the gateway assigned.
func (f *gatewayFixture) connect(t *testing.T) (*websocket.Conn, domain.ChannelID) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	env := waitFor(t, conn, EventConnected)
	var hello struct {
		ChannelID domain.ChannelID `json:"channelId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hello))
	require.NotEmpty(t, hello.ChannelID)
	return conn, hello.ChannelID
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: data}))
}

func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// waitFor reads events until the named one arrives, discarding unrelated
// broadcasts along the way.
func waitFor(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		env := readEvent(t, conn)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("event %q never arrived", event)
	return Envelope{}
}

func decode(t *testing.T, env Envelope, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, into))
}

// startHost seeds a session and drives the start handshake for its host.
func (f *gatewayFixture) startHost(t *testing.T, roomID domain.RoomID, sessionID domain.SessionID, hostID domain.UserID) (*websocket.Conn, domain.ChannelID) {
	t.Helper()
	f.seedSession(t, sessionID, roomID, hostID)

	conn, channelID := f.connect(t)
	sendEvent(t, conn, EventStartSession, StartSessionPayload{
		RoomID: roomID, UserID: hostID, UserName: "Host", SessionID: sessionID,
	})
	waitFor(t, conn, EventSessionStartSuccess)
	return conn, channelID
}

func (f *gatewayFixture) joinGuest(t *testing.T, roomID domain.RoomID, userID domain.UserID, name string) (*websocket.Conn, domain.ChannelID) {
	t.Helper()
	conn, channelID := f.connect(t)
	sendEvent(t, conn, EventJoinLiveSession, JoinSessionPayload{
		RoomID: roomID, UserID: userID, UserName: name,
	})
	waitFor(t, conn, EventJoinSuccess)
	return conn, channelID
}

func TestConnectHandshake(t *testing.T) {
	f := newGatewayFixture(t)

	_, channelID := f.connect(t)
	assert.NotEmpty(t, channelID)

	assert.Eventually(t, func() bool {
		return f.gateway.ConnectedChannels() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStartSessionRegistersRoom(t *testing.T) {
	f := newGatewayFixture(t)
	f.seedSession(t, "sess-1", "room-1", "host-1")

	conn, _ := f.connect(t)
	sendEvent(t, conn, EventStartSession, StartSessionPayload{
		RoomID: "room-1", UserID: "host-1", UserName: "Host", SessionID: "sess-1",
	})

	env := waitFor(t, conn, EventSessionStartSuccess)
	var result ports.StartSessionResult
	decode(t, env, &result)
	assert.Equal(t, domain.RoomID("room-1"), result.RoomID)
	assert.Len(t, result.Participants, 1)

	room, err := f.registry.Get(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("host-1"), room.HostID)
}

func TestStartSessionRejectsNonHost(t *testing.T) {
	f := newGatewayFixture(t)
	f.seedSession(t, "sess-1", "room-1", "host-1")

	conn, _ := f.connect(t)
	sendEvent(t, conn, EventStartSession, StartSessionPayload{
		RoomID: "room-1", UserID: "imposter", UserName: "Imposter", SessionID: "sess-1",
	})

	env := waitFor(t, conn, EventError)
	var errPayload ErrorPayload
	decode(t, env, &errPayload)
	assert.Equal(t, "UNAUTHORIZED", errPayload.Code)
}

func TestJoinNotifiesRoom(t *testing.T) {
	f := newGatewayFixture(t)
	hostConn, _ := f.startHost(t, "room-1", "sess-1", "host-1")

	_, _ = f.joinGuest(t, "room-1", "guest-1", "Guest")

	env := waitFor(t, hostConn, EventUserJoined)
	var joined struct {
		UserID   domain.UserID `json:"userId"`
		UserName string        `json:"userName"`
	}
	decode(t, env, &joined)
	assert.Equal(t, domain.UserID("guest-1"), joined.UserID)

	stats := waitFor(t, hostConn, EventRoomStats)
	var roomStats struct {
		ParticipantCount int `json:"participantCount"`
	}
	decode(t, stats, &roomStats)
	assert.Equal(t, 2, roomStats.ParticipantCount)

	participants := f.gateway.RoomParticipants("room-1")
	assert.Len(t, participants, 2)
}

func TestUnknownEventReturnsError(t *testing.T) {
	f := newGatewayFixture(t)
	conn, _ := f.connect(t)

	require.NoError(t, conn.WriteJSON(Envelope{Event: "teleport"}))

	env := waitFor(t, conn, EventError)
	var errPayload ErrorPayload
	decode(t, env, &errPayload)
	assert.Equal(t, "INVALID_INPUT", errPayload.Code)
	assert.Contains(t, errPayload.Message, "unknown event")
}

func TestOfferRelayedToTarget(t *testing.T) {
	f := newGatewayFixture(t)
	hostConn, hostChannel := f.startHost(t, "room-1", "sess-1", "host-1")
	guestConn, guestChannel := f.joinGuest(t, "room-1", "guest-1", "Guest")

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	sendEvent(t, guestConn, EventWebRTCOffer, RelayPayload{
		TargetChannelID: hostChannel,
		Payload:         offer,
	})

	env := waitFor(t, hostConn, EventWebRTCOffer)
	var relayed struct {
		SenderChannelID domain.ChannelID `json:"senderChannelId"`
		Payload         json.RawMessage  `json:"payload"`
	}
	decode(t, env, &relayed)
	assert.Equal(t, guestChannel, relayed.SenderChannelID)
	assert.JSONEq(t, string(offer), string(relayed.Payload))
}

func TestRelayToUnknownTargetIsSilent(t *testing.T) {
	f := newGatewayFixture(t)
	_, _ = f.startHost(t, "room-1", "sess-1", "host-1")
	guestConn, _ := f.joinGuest(t, "room-1", "guest-1", "Guest")

	sendEvent(t, guestConn, EventWebRTCICE, RelayPayload{
		TargetChannelID: "ch_gone",
		Payload:         json.RawMessage(`{"candidate":"x"}`),
	})

	// The next caller-visible event must be the probe's error, proving the
	// failed relay produced nothing.
	require.NoError(t, guestConn.WriteJSON(Envelope{Event: "probe"}))
	env := waitFor(t, guestConn, EventError)
	var errPayload ErrorPayload
	decode(t, env, &errPayload)
	assert.Contains(t, errPayload.Message, "unknown event")
}

func TestChatBroadcast(t *testing.T) {
	f := newGatewayFixture(t)
	hostConn, _ := f.startHost(t, "room-1", "sess-1", "host-1")
	guestConn, _ := f.joinGuest(t, "room-1", "guest-1", "Guest")

	sendEvent(t, guestConn, EventSendMessage, SendMessagePayload{
		RoomID: "room-1", Message: "  hello room  ", UserName: "Guest", UserID: "guest-1",
	})

	for _, conn := range []*websocket.Conn{hostConn, guestConn} {
		env := waitFor(t, conn, EventReceiveMessage)
		var msg ChatMessage
		decode(t, env, &msg)
		assert.Equal(t, "hello room", msg.Message)
		assert.Equal(t, "Guest", msg.UserName)
		assert.NotEmpty(t, msg.ID)
	}
}

func TestChatRequiresLiveRoom(t *testing.T) {
	f := newGatewayFixture(t)
	conn, _ := f.connect(t)

	sendEvent(t, conn, EventSendMessage, SendMessagePayload{
		RoomID: "room-1", Message: "anyone here", UserName: "Drifter", UserID: "user-1",
	})

	env := waitFor(t, conn, EventError)
	var errPayload ErrorPayload
	decode(t, env, &errPayload)
	assert.Equal(t, "INVALID_STATE", errPayload.Code)
}

func TestBinaryFramesForwardedOnlyFromHost(t *testing.T) {
	f := newGatewayFixture(t)
	hostConn, _ := f.startHost(t, "room-1", "sess-1", "host-1")
	guestConn, _ := f.joinGuest(t, "room-1", "guest-1", "Guest")

	frame := append([]byte{0xFF, 0xD8}, []byte("jpegdata")...)
	require.NoError(t, hostConn.WriteMessage(websocket.BinaryMessage, frame))

	require.Eventually(t, func() bool {
		return f.streams.frameCount("room-1") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, guestConn.WriteMessage(websocket.BinaryMessage, frame))

	// Give the guest frame time to arrive; it must not be forwarded.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.streams.frameCount("room-1"))
}

func TestEndSessionTearsDownRoom(t *testing.T) {
	f := newGatewayFixture(t)
	hostConn, _ := f.startHost(t, "room-1", "sess-1", "host-1")
	guestConn, _ := f.joinGuest(t, "room-1", "guest-1", "Guest")

	sendEvent(t, hostConn, EventEndSession, EndSessionPayload{
		RoomID: "room-1", UserID: "host-1", SessionID: "sess-1",
	})

	waitFor(t, hostConn, EventSessionEnded)
	waitFor(t, guestConn, EventSessionEnded)

	_, err := f.registry.Get(context.Background(), "room-1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Contains(t, f.streams.stops, domain.RoomID("room-1"))
}

func TestHostDisconnectEndsSession(t *testing.T) {
	f := newGatewayFixture(t)
	hostConn, _ := f.startHost(t, "room-1", "sess-1", "host-1")
	guestConn, _ := f.joinGuest(t, "room-1", "guest-1", "Guest")

	require.NoError(t, hostConn.Close())

	waitFor(t, guestConn, EventSessionEnded)

	require.Eventually(t, func() bool {
		_, err := f.registry.Get(context.Background(), "room-1")
		return err == domain.ErrRoomNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestKickRemovesTarget(t *testing.T) {
	f := newGatewayFixture(t)
	hostConn, _ := f.startHost(t, "room-1", "sess-1", "host-1")
	guestConn, _ := f.joinGuest(t, "room-1", "guest-1", "Guest")

	sendEvent(t, hostConn, EventHostAction, HostActionPayload{
		RoomID: "room-1", Action: "kick", TargetUserID: "guest-1",
	})

	env := waitFor(t, guestConn, EventKickedFromSession)
	var kicked struct {
		Message string `json:"message"`
	}
	decode(t, env, &kicked)
	assert.Contains(t, kicked.Message, "Removed by")

	require.Eventually(t, func() bool {
		room, err := f.registry.Get(context.Background(), "room-1")
		return err == nil && len(room.Participants) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHostActionRejectsGuest(t *testing.T) {
	f := newGatewayFixture(t)
	_, _ = f.startHost(t, "room-1", "sess-1", "host-1")
	guestConn, _ := f.joinGuest(t, "room-1", "guest-1", "Guest")

	sendEvent(t, guestConn, EventHostAction, HostActionPayload{
		RoomID: "room-1", Action: "mute-all",
	})

	env := waitFor(t, guestConn, EventError)
	var errPayload ErrorPayload
	decode(t, env, &errPayload)
	assert.Equal(t, "FORBIDDEN", errPayload.Code)
}

func TestPingConnectionReportsPresence(t *testing.T) {
	f := newGatewayFixture(t)
	conn, _ := f.connect(t)
	_, otherChannel := f.connect(t)

	sendEvent(t, conn, EventPingConnection, PingConnectionPayload{TargetChannelID: otherChannel})

	env := waitFor(t, conn, EventPingResponse)
	var pong struct {
		TargetChannelID domain.ChannelID `json:"targetChannelId"`
		Connected       bool             `json:"connected"`
	}
	decode(t, env, &pong)
	assert.Equal(t, otherChannel, pong.TargetChannelID)
	assert.True(t, pong.Connected)

	sendEvent(t, conn, EventPingConnection, PingConnectionPayload{TargetChannelID: "ch_gone"})
	env = waitFor(t, conn, EventPingResponse)
	decode(t, env, &pong)
	assert.False(t, pong.Connected)
}

func TestRateLimitAnswersWithError(t *testing.T) {
	registry := registrymemory.NewMemoryRoomRegistry()
	sessions := repomemory.NewMemorySessionRepository()
	streams := newFakeStreamManager()

	gw := NewGateway(GatewayConfig{
		ReadTimeout:     time.Minute,
		WriteTimeout:    5 * time.Second,
		PingInterval:    time.Minute,
		EventsPerSecond: 1,
		EventBurst:      1,
	}, nil, streams, monitoring.NopRecorder{}, zap.NewNop())
	lifecycle := services.NewLifecycleService(
		registry, sessions, gw, streams, monitoring.NopRecorder{},
		5*time.Minute, zap.NewNop().Sugar())
	gw.SetLifecycle(lifecycle)

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitFor(t, conn, EventConnected)

	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteJSON(Envelope{Event: EventPingConnection, Data: json.RawMessage(`{}`)}))
	}

	env := waitFor(t, conn, EventError)
	var errPayload ErrorPayload
	decode(t, env, &errPayload)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errPayload.Code)
}
