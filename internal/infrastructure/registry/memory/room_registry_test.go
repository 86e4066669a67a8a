package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiocast/internal/core/domain"
)

func newRoom(id domain.RoomID) *domain.Room {
	now := time.Now()
	return &domain.Room{
		ID:           id,
		HostID:       "host-1",
		SessionID:    "sess-1",
		Participants: map[domain.UserID]struct{}{"host-1": {}},
		Status:       domain.RoomStatusLive,
		StartedAt:    now,
		LastActivity: now,
	}
}

func TestCreateAndGet(t *testing.T) {
	r := NewMemoryRoomRegistry()
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, newRoom("room-1")))

	room, err := r.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("host-1"), room.HostID)

	_, err = r.Get(ctx, "room-2")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestCreateDuplicate(t *testing.T) {
	r := NewMemoryRoomRegistry()
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, newRoom("room-1")))
	assert.ErrorIs(t, r.Create(ctx, newRoom("room-1")), domain.ErrRoomExists)
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewMemoryRoomRegistry()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newRoom("room-1")))

	room, err := r.Get(ctx, "room-1")
	require.NoError(t, err)
	room.Participants["intruder"] = struct{}{}

	again, err := r.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, again.Participants, 1)
}

func TestParticipants(t *testing.T) {
	r := NewMemoryRoomRegistry()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newRoom("room-1")))

	require.NoError(t, r.AddParticipant(ctx, "room-1", "guest-1"))
	room, err := r.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, room.Participants, 2)

	require.NoError(t, r.RemoveParticipant(ctx, "room-1", "guest-1"))
	room, err = r.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, room.Participants, 1)

	assert.ErrorIs(t, r.AddParticipant(ctx, "room-9", "guest-1"), domain.ErrRoomNotFound)
}

func TestTouch(t *testing.T) {
	r := NewMemoryRoomRegistry()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newRoom("room-1")))

	at := time.Now().Add(time.Hour)
	require.NoError(t, r.Touch(ctx, "room-1", at))

	room, err := r.Get(ctx, "room-1")
	require.NoError(t, err)
	assert.True(t, room.LastActivity.Equal(at))

	assert.ErrorIs(t, r.Touch(ctx, "room-9", at), domain.ErrRoomNotFound)
}

func TestDeleteAndList(t *testing.T) {
	r := NewMemoryRoomRegistry()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, newRoom("room-1")))
	require.NoError(t, r.Create(ctx, newRoom("room-2")))

	rooms, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	require.NoError(t, r.Delete(ctx, "room-1"))
	assert.ErrorIs(t, r.Delete(ctx, "room-1"), domain.ErrRoomNotFound)

	rooms, err = r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}
