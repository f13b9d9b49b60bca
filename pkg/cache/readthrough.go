package cache

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cacher is the subset of cache operations read paths depend on.
type Cacher interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

const (
	defaultLoaderTTL = 10 * time.Minute
	defaultJitter    = 15 * time.Second
	refreshTimeout   = 15 * time.Second
	storeTimeout     = 5 * time.Second
)

// entry wraps a cached value with the time it was loaded, so a hit can tell
// how close it is to expiring.
type entry[T any] struct {
	Value    T         `json:"value"`
	CachedAt time.Time `json:"cached_at"`
}

// Loader reads through a Cacher. Concurrent misses for one key share a single
// fetch, and hits older than the refresh-after age are reloaded in the
// background while the cached value is served.
type Loader struct {
	cache        Cacher
	group        singleflight.Group
	ttl          time.Duration
	jitter       time.Duration
	refreshAfter time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

type LoaderOption func(*Loader)

func WithTTL(ttl time.Duration) LoaderOption {
	return func(l *Loader) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithJitter spreads expirations by up to d either way. Zero disables it.
func WithJitter(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d >= 0 {
			l.jitter = d
		}
	}
}

// WithRefreshAfter sets the entry age at which a hit triggers a background
// reload. Defaults to half the TTL; zero reloads on every hit.
func WithRefreshAfter(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.refreshAfter = d
	}
}

func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader builds a Loader over c. A nil c makes every Load a direct fetch.
func NewLoader(c Cacher, opts ...LoaderOption) *Loader {
	l := &Loader{
		cache:        c,
		ttl:          defaultLoaderTTL,
		jitter:       defaultJitter,
		refreshAfter: -1,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.refreshAfter < 0 {
		l.refreshAfter = l.ttl / 2
	}
	return l
}

func (l *Loader) TTL() time.Duration {
	return l.ttl
}

// expiration applies jitter only when the TTL comfortably exceeds it.
func (l *Loader) expiration() time.Duration {
	if l.jitter <= 0 || l.ttl <= 2*l.jitter {
		return l.ttl
	}
	return l.ttl - l.jitter + rand.N(2*l.jitter)
}

func (l *Loader) stale(cachedAt time.Time) bool {
	return l.now().Sub(cachedAt) >= l.refreshAfter
}

// store is detached from ctx cancellation so a caller that has already
// returned still populates the cache.
func (l *Loader) store(ctx context.Context, key string, value any) {
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	if err := l.cache.Set(setCtx, key, value, l.expiration()); err != nil {
		l.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func reloadInBackground[T any](l *Loader, key string, fetch func(context.Context) (T, error)) {
	go func() {
		_, _, _ = l.group.Do(key+":refresh", func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()

			value, err := fetch(ctx)
			if err != nil {
				l.logger.Warn("background reload failed", zap.String("key", key), zap.Error(err))
				return nil, err
			}
			l.store(ctx, key, entry[T]{Value: value, CachedAt: l.now()})
			return nil, nil
		})
	}()
}

// Load returns the cached value for key or fetches and caches it. Cache
// errors degrade to a fetch; fetch errors are returned untouched and never
// cached.
func Load[T any](ctx context.Context, l *Loader, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if l == nil || l.cache == nil {
		return fetch(ctx)
	}

	var cached entry[T]
	err := l.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		if l.stale(cached.CachedAt) {
			l.logger.Debug("cache hit, reloading", zap.String("key", key))
			reloadInBackground(l, key, fetch)
		}
		return cached.Value, nil
	case IsMiss(err):
		l.logger.Debug("cache miss", zap.String("key", key))
	default:
		l.logger.Warn("cache get failed, fetching directly", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		l.store(ctx, key, entry[T]{Value: value, CachedAt: l.now()})
		return value, nil
	})
	if err != nil {
		return zero, err
	}

	value, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: shared load for %q returned %T", key, v)
	}
	return value, nil
}
