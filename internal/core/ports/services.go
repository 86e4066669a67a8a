package ports

import (
	"context"

	"studiocast/internal/core/domain"
)

// Broadcaster is the transport-layer surface the lifecycle coordinator uses to
// manage room groups and deliver events. The transport owns the channel
// objects; the coordinator only ever sees identities and channel ids, so the
// ownership graph between rooms and channels stays acyclic.
type Broadcaster interface {
	// JoinRoom adds the participant's channel to the room group and attaches
	// the identity to the channel. Called only after a validated handshake.
	JoinRoom(roomID domain.RoomID, participant domain.Participant)
	LeaveRoom(roomID domain.RoomID, channelID domain.ChannelID)
	CloseRoom(roomID domain.RoomID)
	BroadcastToRoom(roomID domain.RoomID, event string, payload interface{})
	BroadcastToRoomExcept(roomID domain.RoomID, except domain.ChannelID, event string, payload interface{})
	SendToChannel(channelID domain.ChannelID, event string, payload interface{}) error
	RoomParticipants(roomID domain.RoomID) []domain.Participant
}

// StartSessionResult is returned to the starting host.
type StartSessionResult struct {
	RoomID       domain.RoomID        `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
}

// JoinSessionResult is returned to a joining participant.
type JoinSessionResult struct {
	RoomID       domain.RoomID        `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
	HostName     string               `json:"hostName,omitempty"`
}

// LifecycleService transitions sessions between scheduled, live and ended.
// Explicit end, host leave, host disconnect and the idle sweep all converge on
// the same end path.
type LifecycleService interface {
	StartSession(ctx context.Context, caller domain.Participant, roomID domain.RoomID, sessionID domain.SessionID) (*StartSessionResult, error)
	JoinLiveSession(ctx context.Context, caller domain.Participant, roomID domain.RoomID, sessionID domain.SessionID) (*JoinSessionResult, error)
	EndSession(ctx context.Context, callerID domain.UserID, roomID domain.RoomID, sessionID domain.SessionID, reason domain.EndReason) error
	LeaveSession(ctx context.Context, caller domain.Participant, roomID domain.RoomID, reason domain.EndReason) error
	GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.Room, error)
	TouchRoom(ctx context.Context, roomID domain.RoomID)
	SweepIdleRooms(ctx context.Context) int
}

// StreamManager owns at most one external encoder process per room.
type StreamManager interface {
	StartStream(ctx context.Context, roomID domain.RoomID, platform domain.Platform, streamKeyRef string, cfg domain.VideoConfig) error
	SendFrame(roomID domain.RoomID, frame []byte)
	StopStream(roomID domain.RoomID)
	Status(roomID domain.RoomID) domain.StreamStatusReport
	OnStatusChange(fn func(domain.StreamStatusChange))
}

// MetricsRecorder receives operational counters from the coordinator, the
// gateway and the encoder manager.
type MetricsRecorder interface {
	RecordRoomOpened()
	RecordRoomClosed(reason domain.EndReason)
	RecordParticipantJoined(roomID domain.RoomID)
	RecordParticipantLeft(roomID domain.RoomID)
	RecordMessageRelayed(kind string)
	RecordFrameForwarded(roomID domain.RoomID, bytes int)
	RecordFrameDropped(roomID domain.RoomID)
	RecordStreamStatus(roomID domain.RoomID, status domain.StreamStatus)
}
