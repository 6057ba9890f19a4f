// Package redis provides a Redis-backed principals.Store. Each principal is
// stored as a JSON document under "<KeyPrefix><id>".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/authguard/principals"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis store
type Config struct {
	// Client is the Redis client instance
	Client redis.UniversalClient

	// KeyPrefix is the prefix for all Redis keys
	// Default: "authguard:principals:"
	KeyPrefix string
}

// Store implements principals.Store using Redis
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New creates a new Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "authguard:principals:"
	}

	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

// FindByID issues a single GET for the principal's key.
func (s *Store) FindByID(ctx context.Context, id principals.ID) (principals.Principal, error) {
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return principals.Principal{}, principals.ErrNotFound
		}
		return principals.Principal{}, fmt.Errorf("failed to get principal %s: %w", id, err)
	}

	var p principals.Principal
	if err := json.Unmarshal(b, &p); err != nil {
		return principals.Principal{}, fmt.Errorf("failed to unmarshal principal %s: %w", id, err)
	}
	// The key is authoritative for the ID.
	p.ID = id
	return p, nil
}

// Put stores a principal without expiration.
func (s *Store) Put(ctx context.Context, p principals.Principal) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal principal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(p.ID), b, 0).Err(); err != nil {
		return fmt.Errorf("failed to set principal %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes a principal.
func (s *Store) Delete(ctx context.Context, id principals.ID) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete principal %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id principals.ID) string {
	return s.keyPrefix + string(id)
}

// Compile-time interface check
var _ principals.Store = (*Store)(nil)
