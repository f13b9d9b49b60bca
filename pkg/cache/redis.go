// Package cache fronts published read models with Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// Cache stores JSON values under an optional key namespace, so several
// deployments can share one Redis database.
type Cache struct {
	client    *redis.Client
	namespace string
}

type options struct {
	redis     redis.Options
	namespace string
}

type Option func(*options)

func WithAddress(addr string) Option {
	return func(o *options) { o.redis.Addr = addr }
}

func WithPassword(pass string) Option {
	return func(o *options) { o.redis.Password = pass }
}

func WithDB(db int) Option {
	return func(o *options) { o.redis.DB = db }
}

// WithNamespace prefixes every key, e.g. "solargrade:".
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

func WithTimeouts(dial, rw time.Duration) Option {
	return func(o *options) {
		o.redis.DialTimeout = dial
		o.redis.ReadTimeout = rw
		o.redis.WriteTimeout = rw
	}
}

// New connects and pings once; an unreachable server is an error.
func New(ctx context.Context, opts ...Option) (*Cache, error) {
	o := &options{
		redis: redis.Options{
			Addr:        "localhost:6379",
			DialTimeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	client := redis.NewClient(&o.redis)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.redis.Addr, err)
	}

	return &Cache{client: client, namespace: o.namespace}, nil
}

// IsMiss reports whether err means the key was absent.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Cache) key(k string) string {
	return c.namespace + k
}

// Get decodes the value at key into dest. A missing key returns redis.Nil
// unwrapped so IsMiss matches it.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.client.Set(ctx, c.key(key), raw, expiration).Err()
}

// DeletePrefix unlinks every key under prefix and returns how many went.
// Keys are walked with SCAN so the server is never blocked.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	match := c.key(prefix) + "*"
	deleted := 0

	iter := c.client.Scan(ctx, 0, match, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("unlink %q: %w", prefix, err)
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan %q: %w", prefix, err)
	}
	return deleted, flush()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
