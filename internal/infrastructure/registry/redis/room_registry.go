package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisRoomRegistry keeps room state in Redis so multiple signaling processes
// can share one authoritative view. It is a thin client over the store; room
// semantics stay in the lifecycle coordinator.
type RedisRoomRegistry struct {
	client *redis.Client
	prefix string
}

func NewRedisRoomRegistry(client *redis.Client) ports.RoomRegistry {
	return &RedisRoomRegistry{
		client: client,
		prefix: "studiocast:room:",
	}
}

func (r *RedisRoomRegistry) roomKey(id domain.RoomID) string {
	return r.prefix + string(id)
}

func (r *RedisRoomRegistry) activeRoomsKey() string {
	return r.prefix + "active"
}

func (r *RedisRoomRegistry) Create(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	// SETNX makes duplicate creation under a host-start race impossible.
	ok, err := r.client.SetNX(ctx, r.roomKey(room.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set room in Redis: %w", err)
	}
	if !ok {
		return domain.ErrRoomExists
	}

	if err := r.client.SAdd(ctx, r.activeRoomsKey(), string(room.ID)).Err(); err != nil {
		return fmt.Errorf("failed to add room to active set: %w", err)
	}

	return nil
}

func (r *RedisRoomRegistry) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	data, err := r.client.Get(ctx, r.roomKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", err)
	}

	var room domain.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}

	return &room, nil
}

func (r *RedisRoomRegistry) Delete(ctx context.Context, id domain.RoomID) error {
	deleted, err := r.client.Del(ctx, r.roomKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete room from Redis: %w", err)
	}
	if deleted == 0 {
		return domain.ErrRoomNotFound
	}

	if err := r.client.SRem(ctx, r.activeRoomsKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove room from active set: %w", err)
	}

	return nil
}

func (r *RedisRoomRegistry) AddParticipant(ctx context.Context, id domain.RoomID, userID domain.UserID) error {
	return r.mutate(ctx, id, func(room *domain.Room) {
		room.Participants[userID] = struct{}{}
	})
}

func (r *RedisRoomRegistry) RemoveParticipant(ctx context.Context, id domain.RoomID, userID domain.UserID) error {
	return r.mutate(ctx, id, func(room *domain.Room) {
		delete(room.Participants, userID)
	})
}

func (r *RedisRoomRegistry) Touch(ctx context.Context, id domain.RoomID, at time.Time) error {
	return r.mutate(ctx, id, func(room *domain.Room) {
		room.LastActivity = at
	})
}

func (r *RedisRoomRegistry) List(ctx context.Context) ([]*domain.Room, error) {
	ids, err := r.client.SMembers(ctx, r.activeRoomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active rooms: %w", err)
	}

	rooms := make([]*domain.Room, 0, len(ids))
	for _, id := range ids {
		room, err := r.Get(ctx, domain.RoomID(id))
		if err == domain.ErrRoomNotFound {
			// Stale index entry; reconcile.
			r.client.SRem(ctx, r.activeRoomsKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, nil
}

func (r *RedisRoomRegistry) mutate(ctx context.Context, id domain.RoomID, fn func(room *domain.Room)) error {
	key := r.roomKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		var room domain.Room
		if err := json.Unmarshal([]byte(data), &room); err != nil {
			return fmt.Errorf("failed to unmarshal room: %w", err)
		}

		fn(&room)

		updated, err := json.Marshal(&room)
		if err != nil {
			return fmt.Errorf("failed to marshal room: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	// Optimistic locking; retry a few times on contention.
	for i := 0; i < 3; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("room mutation contention on %s", id)
}
