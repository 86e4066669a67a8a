package domain

import (
	"time"
)

type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformTwitch   Platform = "twitch"
	PlatformFacebook Platform = "facebook"
)

type StreamStatus string

const (
	StreamStatusStarting StreamStatus = "starting"
	StreamStatusLive     StreamStatus = "live"
	StreamStatusError    StreamStatus = "error"
	StreamStatusStopped  StreamStatus = "stopped"
)

// VideoConfig carries caller-supplied encoder parameters. Zero values are
// replaced with configured defaults before the encoder is spawned. String
// fields must pass the safe-string check before they reach the argument
// vector.
type VideoConfig struct {
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Framerate    int    `json:"framerate,omitempty"`
	VideoBitrate string `json:"videoBitrate,omitempty"`
	AudioBitrate string `json:"audioBitrate,omitempty"`
}

// StreamError is one bounded, truncated entry in a stream session's recent
// error list.
type StreamError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamStatusReport is the externally visible state of a room's re-stream.
type StreamStatusReport struct {
	Active       bool          `json:"active"`
	Status       StreamStatus  `json:"status,omitempty"`
	UptimeMs     int64         `json:"uptimeMs,omitempty"`
	RecentErrors []StreamError `json:"recentErrors,omitempty"`
}

// StreamStatusChange is delivered to status-change subscribers.
type StreamStatusChange struct {
	RoomID    RoomID       `json:"roomId"`
	OldStatus StreamStatus `json:"oldStatus"`
	NewStatus StreamStatus `json:"newStatus"`
}
