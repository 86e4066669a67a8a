package ports

import (
	"context"
	"time"

	"studiocast/internal/core/domain"
)

// RoomRegistry is the authoritative view of live rooms. All mutation goes
// through these operations; nothing else touches room state directly.
type RoomRegistry interface {
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	Delete(ctx context.Context, id domain.RoomID) error
	AddParticipant(ctx context.Context, id domain.RoomID, userID domain.UserID) error
	RemoveParticipant(ctx context.Context, id domain.RoomID, userID domain.UserID) error
	Touch(ctx context.Context, id domain.RoomID, at time.Time) error
	List(ctx context.Context) ([]*domain.Room, error)
}

// SessionRepository is the external session-document store.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	GetByRoomID(ctx context.Context, roomID domain.RoomID) (*domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
}

// SecretStore resolves opaque secret references. Stream keys come through
// here and must never be logged or echoed back to clients.
type SecretStore interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// RecordingSink accepts recording chunks and returns a URL for each stored
// chunk. The merge/upload pipeline behind it is an external collaborator.
type RecordingSink interface {
	Put(ctx context.Context, sessionID domain.SessionID, participantID domain.UserID, chunk []byte) (string, error)
}
