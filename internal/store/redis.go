package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session history as a JSON-encoded array under a
// single key. An optional TTL expires idle sessions; zero keeps them
// forever, matching the in-memory backend.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.setHistory(ctx, id, []Message{}); err != nil {
		return "", fmt.Errorf("create session %s: %w", id, err)
	}
	return id, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, messages ...Message) error {
	history, err := s.getHistory(ctx, sessionID)
	if err != nil {
		return err
	}

	history = append(history, messages...)
	if err := s.setHistory(ctx, sessionID, history); err != nil {
		return fmt.Errorf("append to session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	return s.getHistory(ctx, sessionID)
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	removed, err := s.rdb.Del(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if removed == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) getHistory(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var history []Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return history, nil
}

func (s *RedisStore) setHistory(ctx context.Context, sessionID string, history []Message) error {
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return s.rdb.Set(ctx, sessionKey(sessionID), encoded, s.ttl).Err()
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}
