package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"
	apperrors "studiocast/pkg/errors"
	"studiocast/pkg/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// GatewayConfig carries the transport timings, the per-channel event rate
// limit and the ICE servers announced to clients on connect.
type GatewayConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	EventsPerSecond float64
	EventBurst      int

	ICEServers []webrtc.ICEServer
}

// Gateway is the signaling transport. It owns every connected channel and the
// room groups, and implements ports.Broadcaster for the lifecycle
// coordinator. Text frames carry event envelopes; binary frames carry JPEG
// stream frames for the room's encoder.
type Gateway struct {
	lifecycle ports.LifecycleService
	streams   ports.StreamManager
	metrics   ports.MetricsRecorder
	cfg       GatewayConfig

	mu       sync.RWMutex
	channels map[domain.ChannelID]*Channel
	rooms    map[domain.RoomID]map[domain.ChannelID]*Channel

	logger *zap.SugaredLogger
}

func NewGateway(cfg GatewayConfig, lifecycle ports.LifecycleService, streams ports.StreamManager, metrics ports.MetricsRecorder, logger *zap.Logger) *Gateway {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Gateway{
		lifecycle: lifecycle,
		streams:   streams,
		metrics:   metrics,
		cfg:       cfg,
		channels:  make(map[domain.ChannelID]*Channel),
		rooms:     make(map[domain.RoomID]map[domain.ChannelID]*Channel),
		logger:    logger.Sugar(),
	}
}

// SetLifecycle breaks the construction cycle between the gateway and the
// coordinator: the coordinator needs a Broadcaster and the gateway needs the
// coordinator. Must be called before serving.
func (g *Gateway) SetLifecycle(lifecycle ports.LifecycleService) {
	g.lifecycle = lifecycle
}

func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var limiter *rate.Limiter
	if g.cfg.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(g.cfg.EventsPerSecond), g.cfg.EventBurst)
	}

	ch := newChannel(domain.ChannelID(utils.GenerateChannelID()), conn, g.cfg.WriteTimeout, limiter)

	g.mu.Lock()
	g.channels[ch.id] = ch
	g.mu.Unlock()

	g.logger.Infow("channel connected", "channel_id", ch.id)

	if err := ch.send(EventConnected, map[string]interface{}{
		"channelId":  ch.id,
		"iceServers": g.cfg.ICEServers,
	}); err != nil {
		g.logger.Infow("failed to send connect ack", "channel_id", ch.id, "error", err)
	}

	conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(g.cfg.PingInterval)
	defer pingTicker.Stop()

	type inbound struct {
		messageType int
		data        []byte
	}
	messageChan := make(chan inbound, 16)
	errorChan := make(chan error, 1)

	go func() {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
			messageChan <- inbound{messageType: mt, data: data}
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			switch msg.messageType {
			case websocket.BinaryMessage:
				g.handleFrame(ch, msg.data)
			case websocket.TextMessage:
				g.handleEnvelope(r.Context(), ch, msg.data)
			}

		case <-pingTicker.C:
			if err := ch.ping(); err != nil {
				g.logger.Infow("error sending ping", "channel_id", ch.id, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.Infow("error reading from channel", "channel_id", ch.id, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	g.disconnect(ch)
}

// disconnect tears down a channel. A disconnect while attached to a room is
// routed through the same leave path as an explicit leave-session, so a host
// dropping ends the session for everyone.
func (g *Gateway) disconnect(ch *Channel) {
	roomID, participant := ch.identity()

	g.mu.Lock()
	delete(g.channels, ch.id)
	g.mu.Unlock()

	if roomID != "" {
		if err := g.lifecycle.LeaveSession(context.Background(), participant, roomID, domain.EndReasonHostDisconnect); err != nil {
			g.logger.Infow("leave on disconnect failed",
				"channel_id", ch.id, "room_id", roomID, "error", err)
		}
	}

	g.logger.Infow("channel disconnected", "channel_id", ch.id)
}

// handleEnvelope decodes and dispatches one text event. The switch is the
// closed set of inbound events; anything else is answered with an error.
func (g *Gateway) handleEnvelope(ctx context.Context, ch *Channel, data []byte) {
	if !ch.allow() {
		ch.sendError(apperrors.NewRateLimitError())
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		g.logger.Debugw("malformed envelope", "channel_id", ch.id, "error", err)
		return
	}

	var err error
	switch env.Event {
	case EventStartSession:
		err = g.handleStartSession(ctx, ch, env.Data)
	case EventJoinLiveSession:
		err = g.handleJoinLiveSession(ctx, ch, env.Data)
	case EventEndSession:
		err = g.handleEndSession(ctx, ch, env.Data)
	case EventLeaveSession:
		err = g.handleLeaveSession(ctx, ch)
	case EventSendMessage:
		err = g.handleSendMessage(ctx, ch, env.Data)
	case EventTypingStart:
		err = g.handleTyping(ch, env.Data, true)
	case EventTypingStop:
		err = g.handleTyping(ch, env.Data, false)
	case EventParticipantStatus:
		err = g.handleParticipantStatus(ch, env.Data)
	case EventHostAction:
		err = g.handleHostAction(ctx, ch, env.Data)
	case EventWebRTCOffer:
		err = g.handleRelay(ch, EventWebRTCOffer, env.Data)
	case EventWebRTCAnswer:
		err = g.handleRelay(ch, EventWebRTCAnswer, env.Data)
	case EventWebRTCICE:
		err = g.handleRelay(ch, EventWebRTCICE, env.Data)
	case EventConnectionState:
		err = g.handleConnectionState(ch, env.Data)
	case EventStreamStateChange:
		err = g.handleStreamStateChange(ch, env.Data)
	case EventRequestReconnect:
		err = g.handleRequestReconnect(ch, env.Data)
	case EventPingConnection:
		err = g.handlePingConnection(ch, env.Data)
	case EventGetStreamStatus:
		err = g.handleGetStreamStatus(ch, env.Data)
	default:
		err = apperrors.NewInvalidInputError("unknown event: " + env.Event)
	}

	if err != nil {
		g.logger.Infow("event handling failed",
			"channel_id", ch.id, "event", env.Event, "error", err)
		ch.sendError(err)
	}
}

// handleFrame forwards one binary JPEG frame to the room's encoder. Frames
// from channels that are not a room's host are dropped.
func (g *Gateway) handleFrame(ch *Channel, frame []byte) {
	roomID, participant := ch.identity()
	if roomID == "" || !participant.IsHost {
		g.metrics.RecordFrameDropped(roomID)
		return
	}
	g.streams.SendFrame(roomID, frame)
	g.lifecycle.TouchRoom(context.Background(), roomID)
}

// ---- ports.Broadcaster ----

func (g *Gateway) JoinRoom(roomID domain.RoomID, participant domain.Participant) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.channels[participant.ChannelID]
	if !ok {
		return
	}
	ch.attachIdentity(roomID, participant)

	group, ok := g.rooms[roomID]
	if !ok {
		group = make(map[domain.ChannelID]*Channel)
		g.rooms[roomID] = group
	}
	group[ch.id] = ch
}

func (g *Gateway) LeaveRoom(roomID domain.RoomID, channelID domain.ChannelID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if group, ok := g.rooms[roomID]; ok {
		if ch, ok := group[channelID]; ok {
			ch.clearIdentity()
		}
		delete(group, channelID)
		if len(group) == 0 {
			delete(g.rooms, roomID)
		}
	}
}

func (g *Gateway) CloseRoom(roomID domain.RoomID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, ch := range g.rooms[roomID] {
		ch.clearIdentity()
	}
	delete(g.rooms, roomID)
}

func (g *Gateway) BroadcastToRoom(roomID domain.RoomID, event string, payload interface{}) {
	for _, ch := range g.roomChannels(roomID) {
		if err := ch.send(event, payload); err != nil {
			g.logger.Debugw("broadcast send failed",
				"room_id", roomID, "channel_id", ch.id, "event", event, "error", err)
		}
	}
}

func (g *Gateway) BroadcastToRoomExcept(roomID domain.RoomID, except domain.ChannelID, event string, payload interface{}) {
	for _, ch := range g.roomChannels(roomID) {
		if ch.id == except {
			continue
		}
		if err := ch.send(event, payload); err != nil {
			g.logger.Debugw("broadcast send failed",
				"room_id", roomID, "channel_id", ch.id, "event", event, "error", err)
		}
	}
}

func (g *Gateway) SendToChannel(channelID domain.ChannelID, event string, payload interface{}) error {
	g.mu.RLock()
	ch, ok := g.channels[channelID]
	g.mu.RUnlock()

	if !ok {
		return domain.ErrChannelNotFound
	}
	return ch.send(event, payload)
}

func (g *Gateway) RoomParticipants(roomID domain.RoomID) []domain.Participant {
	channels := g.roomChannels(roomID)
	participants := make([]domain.Participant, 0, len(channels))
	for _, ch := range channels {
		chRoom, p := ch.identity()
		if chRoom == roomID && p.UserID != "" {
			participants = append(participants, p)
		}
	}
	return participants
}

func (g *Gateway) roomChannels(roomID domain.RoomID) []*Channel {
	g.mu.RLock()
	defer g.mu.RUnlock()

	group := g.rooms[roomID]
	channels := make([]*Channel, 0, len(group))
	for _, ch := range group {
		channels = append(channels, ch)
	}
	return channels
}

func (g *Gateway) channelByUserID(userID domain.UserID) *Channel {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, ch := range g.channels {
		_, p := ch.identity()
		if p.UserID == userID {
			return ch
		}
	}
	return nil
}

// ConnectedChannels reports the number of live channels, for health checks.
func (g *Gateway) ConnectedChannels() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.channels)
}

func (g *Gateway) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": g.ConnectedChannels(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func appError(err error) *apperrors.AppError {
	return apperrors.GetAppError(err)
}
