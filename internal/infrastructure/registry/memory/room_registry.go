package memory

import (
	"context"
	"sync"
	"time"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"
)

type MemoryRoomRegistry struct {
	rooms map[domain.RoomID]*domain.Room
	mu    sync.RWMutex
}

func NewMemoryRoomRegistry() ports.RoomRegistry {
	return &MemoryRoomRegistry{
		rooms: make(map[domain.RoomID]*domain.Room),
	}
}

func (r *MemoryRoomRegistry) Create(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[room.ID]; exists {
		return domain.ErrRoomExists
	}

	r.rooms[room.ID] = room
	return nil
}

func (r *MemoryRoomRegistry) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[id]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	return cloneRoom(room), nil
}

func (r *MemoryRoomRegistry) Delete(ctx context.Context, id domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[id]; !exists {
		return domain.ErrRoomNotFound
	}

	delete(r.rooms, id)
	return nil
}

func (r *MemoryRoomRegistry) AddParticipant(ctx context.Context, id domain.RoomID, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[id]
	if !exists {
		return domain.ErrRoomNotFound
	}

	room.Participants[userID] = struct{}{}
	return nil
}

func (r *MemoryRoomRegistry) RemoveParticipant(ctx context.Context, id domain.RoomID, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[id]
	if !exists {
		return domain.ErrRoomNotFound
	}

	delete(room.Participants, userID)
	return nil
}

func (r *MemoryRoomRegistry) Touch(ctx context.Context, id domain.RoomID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[id]
	if !exists {
		return domain.ErrRoomNotFound
	}

	room.LastActivity = at
	return nil
}

func (r *MemoryRoomRegistry) List(ctx context.Context) ([]*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, cloneRoom(room))
	}

	return rooms, nil
}

// cloneRoom copies the room so callers cannot mutate registry state without
// going through the registry operations.
func cloneRoom(room *domain.Room) *domain.Room {
	clone := *room
	clone.Participants = make(map[domain.UserID]struct{}, len(room.Participants))
	for id := range room.Participants {
		clone.Participants[id] = struct{}{}
	}
	return &clone
}
