package signal

import (
	"encoding/json"
	"time"

	"studiocast/internal/core/domain"
)

// Inbound event names. The dispatch switch in gateway.go covers every one of
// these; an unknown name is answered with an error event instead of being
// ignored.
const (
	EventStartSession      = "start-session"
	EventJoinLiveSession   = "join-live-session"
	EventEndSession        = "end-session"
	EventLeaveSession      = "leave-session"
	EventSendMessage       = "send-message"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventParticipantStatus = "participant-status-update"
	EventHostAction        = "host-action"
	EventWebRTCOffer       = "webrtc-offer"
	EventWebRTCAnswer      = "webrtc-answer"
	EventWebRTCICE         = "webrtc-ice-candidate"
	EventConnectionState   = "webrtc-connection-state"
	EventStreamStateChange = "stream-state-change"
	EventRequestReconnect  = "request-reconnect"
	EventPingConnection    = "ping-connection"
	EventGetStreamStatus   = "get-stream-status"
)

// Outbound event names.
const (
	EventConnected           = "connected"
	EventError               = "error"
	EventSessionStarted      = "session-started"
	EventSessionStartSuccess = "session-start-success"
	EventSessionEnded        = "session-ended"
	EventJoinSuccess         = "join-success"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventRoomStats           = "room-stats"
	EventReceiveMessage      = "receive-message"
	EventUserTyping          = "user-typing"
	EventParticipantChanged  = "participant-status-changed"
	EventHostActionBroadcast = "host-action-broadcast"
	EventKickedFromSession   = "kicked-from-session"
	EventPeerConnUpdate      = "peer-connection-update"
	EventParticipantStream   = "participant-stream-update"
	EventReconnectRequest    = "reconnect-request"
	EventPingResponse        = "ping-response"
	EventStreamStatus        = "stream-status"
	EventStreamStatusUpdate  = "stream-status-update"
)

// Envelope is the wire frame for every text message on a channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type StartSessionPayload struct {
	RoomID    domain.RoomID    `json:"roomId"`
	UserID    domain.UserID    `json:"userId"`
	UserName  string           `json:"userName"`
	SessionID domain.SessionID `json:"sessionId"`
}

type JoinSessionPayload struct {
	RoomID    domain.RoomID    `json:"roomId"`
	UserID    domain.UserID    `json:"userId"`
	UserName  string           `json:"userName"`
	SessionID domain.SessionID `json:"sessionId"`
}

type EndSessionPayload struct {
	RoomID    domain.RoomID    `json:"roomId"`
	UserID    domain.UserID    `json:"userId"`
	SessionID domain.SessionID `json:"sessionId"`
}

type SendMessagePayload struct {
	RoomID   domain.RoomID `json:"roomId"`
	Message  string        `json:"message"`
	UserName string        `json:"userName"`
	UserID   domain.UserID `json:"userId"`
}

type TypingPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

type ParticipantStatusPayload struct {
	RoomID domain.RoomID   `json:"roomId"`
	UserID domain.UserID   `json:"userId"`
	Status json.RawMessage `json:"status"`
}

type HostActionPayload struct {
	RoomID       domain.RoomID `json:"roomId"`
	Action       string        `json:"action"`
	TargetUserID domain.UserID `json:"targetUserId"`
}

// RelayPayload carries an opaque negotiation blob to one target channel. The
// relay never inspects the inner payload.
type RelayPayload struct {
	TargetChannelID domain.ChannelID `json:"targetChannelId"`
	Payload         json.RawMessage  `json:"payload"`
}

type ConnectionStatePayload struct {
	TargetChannelID domain.ChannelID `json:"targetChannelId"`
	ConnectionState string           `json:"connectionState"`
}

type StreamStatePayload struct {
	HasVideo bool `json:"hasVideo"`
	HasAudio bool `json:"hasAudio"`
}

type RequestReconnectPayload struct {
	TargetUserID domain.UserID `json:"targetUserId"`
}

type PingConnectionPayload struct {
	TargetChannelID domain.ChannelID `json:"targetChannelId"`
}

type GetStreamStatusPayload struct {
	RoomID domain.RoomID `json:"roomId"`
}

type ChatMessage struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	UserName  string        `json:"userName"`
	UserID    domain.UserID `json:"userId"`
	Timestamp time.Time     `json:"timestamp"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
