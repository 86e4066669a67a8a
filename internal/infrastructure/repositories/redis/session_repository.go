package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisSessionRepository persists session documents in Redis. Deployments
// with a full document store put their own implementation behind the same
// port.
type RedisSessionRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionRepository(client *redis.Client) ports.SessionRepository {
	return &RedisSessionRepository{
		client: client,
		prefix: "studiocast:session:",
	}
}

func (r *RedisSessionRepository) sessionKey(id domain.SessionID) string {
	return r.prefix + string(id)
}

func (r *RedisSessionRepository) roomIndexKey(roomID domain.RoomID) string {
	return r.prefix + "room:" + string(roomID)
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.sessionKey(session.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}

	if session.RoomID != "" {
		if err := r.client.Set(ctx, r.roomIndexKey(session.RoomID), string(session.ID), 0).Err(); err != nil {
			return fmt.Errorf("failed to index session by room: %w", err)
		}
	}

	return nil
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisSessionRepository) GetByRoomID(ctx context.Context, roomID domain.RoomID) (*domain.Session, error) {
	id, err := r.client.Get(ctx, r.roomIndexKey(roomID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session by room: %w", err)
	}

	return r.GetByID(ctx, domain.SessionID(id))
}

func (r *RedisSessionRepository) Update(ctx context.Context, session *domain.Session) error {
	if _, err := r.GetByID(ctx, session.ID); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, r.sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update session in Redis: %w", err)
	}

	return nil
}
