// Package redis keeps slots as string keys in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/resort-relay/internal/slot"
)

// Config captures the connection and key layout for Redis-backed slots.
type Config struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// client is the subset of the go-redis API the slots need.
type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// NewClient dials Redis and verifies the connection with PING.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Store opens slots under one key prefix.
type Store struct {
	client client
	prefix string
}

// New wraps an existing client.
func New(c client, prefix string) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Store{client: c, prefix: prefix}, nil
}

// Open returns the slot stored at <prefix><name>.
func (s *Store) Open(name string) (slot.Slot, error) {
	if err := slot.ValidateName(name); err != nil {
		return nil, err
	}
	return &Slot{client: s.client, key: s.prefix + name}, nil
}

// Slot is one Redis key without expiry.
type Slot struct {
	client client
	key    string
}

// Key returns the Redis key backing the slot.
func (s *Slot) Key() string {
	return s.key
}

// Write sets the key.
func (s *Slot) Write(ctx context.Context, value string) error {
	if err := s.client.Set(ctx, s.key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key, err)
	}
	return nil
}

// Read gets the key. A missing key is an empty slot.
func (s *Slot) Read(ctx context.Context) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", s.key, err)
	}
	return value, value != "", nil
}

// Clear deletes the key.
func (s *Slot) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", s.key, err)
	}
	return nil
}
