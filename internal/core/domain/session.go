package domain

import (
	"time"
)

type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusLive      SessionStatus = "live"
	SessionStatusEnded     SessionStatus = "ended"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Session is the persisted session document held by the external store. The
// document is authoritative for lifecycle state; the in-memory Room is derived
// from it while the session is live.
type Session struct {
	ID              SessionID     `json:"id"`
	RoomID          RoomID        `json:"room_id"`
	Host            UserID        `json:"host"`
	Title           string        `json:"title"`
	Status          SessionStatus `json:"status"`
	ScheduledFor    time.Time     `json:"scheduled_for"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	Participants    []UserID      `json:"participants"`
}

// CanTransitionTo reports whether the session status machine allows moving to
// the target status. Cancelled is reachable only from scheduled.
func (s *Session) CanTransitionTo(target SessionStatus) bool {
	switch s.Status {
	case SessionStatusScheduled:
		return target == SessionStatusLive || target == SessionStatusCancelled
	case SessionStatusLive:
		return target == SessionStatusEnded
	default:
		return false
	}
}
