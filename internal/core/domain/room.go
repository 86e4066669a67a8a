package domain

import (
	"time"
)

type RoomID string
type UserID string
type SessionID string
type ChannelID string

type RoomStatus string

const (
	RoomStatusLive RoomStatus = "live"
)

// Room is the in-memory state of a live session. It exists only while the
// session is live; scheduled/ended/cancelled are states of the persisted
// Session document, not of the Room.
type Room struct {
	ID           RoomID              `json:"id"`
	HostID       UserID              `json:"host_id"`
	SessionID    SessionID           `json:"session_id"`
	Participants map[UserID]struct{} `json:"participants"`
	Status       RoomStatus          `json:"status"`
	StartedAt    time.Time           `json:"started_at"`
	LastActivity time.Time           `json:"last_activity"`
}

// Participant is the identity attached to a signaling channel after a
// successful start or join handshake.
type Participant struct {
	UserID    UserID    `json:"userId"`
	UserName  string    `json:"userName"`
	ChannelID ChannelID `json:"channelId"`
	IsHost    bool      `json:"isHost"`
}

// EndReason explains why a session ended.
type EndReason string

const (
	EndReasonHostEnded      EndReason = "host_ended"
	EndReasonHostLeft       EndReason = "host_left"
	EndReasonHostDisconnect EndReason = "host_disconnect"
	EndReasonIdleTimeout    EndReason = "idle_timeout"
)
