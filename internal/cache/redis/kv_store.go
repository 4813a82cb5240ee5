package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/betslip/internal/domain"
)

// KVStore implements domain.KVStore with plain GET/SET/DEL. Every key is
// prefixed with "betslip:{session}:" so several sessions can share a server.
type KVStore struct {
	rdb    *redis.Client
	prefix string
}

var _ domain.KVStore = (*KVStore)(nil)

// NewKVStore returns a KVStore scoped to session.
func NewKVStore(c *Client, session string) *KVStore {
	return &KVStore{rdb: c.Underlying(), prefix: keyPrefix(session)}
}

func keyPrefix(session string) string {
	if session == "" {
		session = "default"
	}
	return "betslip:" + session + ":"
}

func (s *KVStore) key(k string) string {
	return s.prefix + k
}

// Get returns the stored value or domain.ErrNotFound.
func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value without expiry.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key; a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", key, err)
	}
	return nil
}
