// Package scheduler republishes vendor rankings on a fixed interval and on
// demand, with at most one pass in flight.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/solargrade/solargrade-server/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultInterval   = 30 * time.Minute
	defaultRunTimeout = 5 * time.Minute
	invalidateTimeout = 5 * time.Second
	flightKey         = "refresh"

	// Reads that began before a publish finish within the cache loader's
	// reload and store timeouts; a second pass after this delay clears any
	// pre-publish view they wrote back.
	defaultSettleDelay = 20 * time.Second
)

var ErrStopped = errors.New("scheduler stopped")

type Pipeline interface {
	RefreshAndPublish(ctx context.Context) (service.RefreshOutcome, error)
}

// Invalidator drops cached read models made stale by a publish.
type Invalidator interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

type Scheduler struct {
	pipeline    Pipeline
	invalidator Invalidator
	prefixes    []string
	logger      *zap.Logger
	interval    time.Duration
	runTimeout  time.Duration
	runOnStart  bool
	settleDelay time.Duration

	sf       singleflight.Group
	base     context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once
	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
	settling sync.WaitGroup
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

// WithInvalidator clears every key under prefixes after a successful publish.
func WithInvalidator(inv Invalidator, prefixes ...string) Option {
	return func(s *Scheduler) {
		s.invalidator = inv
		s.prefixes = prefixes
	}
}

// WithSettleDelay sets when the follow-up invalidation pass runs after a
// publish. Zero disables the second pass.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.settleDelay = d
		}
	}
}

// WithRunOnStart publishes once immediately instead of waiting a full interval.
func WithRunOnStart(enabled bool) Option {
	return func(s *Scheduler) { s.runOnStart = enabled }
}

func New(pipeline Pipeline, logger *zap.Logger, opts ...Option) *Scheduler {
	if pipeline == nil {
		panic("nil Pipeline provided to scheduler.New")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		pipeline:    pipeline,
		logger:      logger.Named("scheduler"),
		interval:    defaultInterval,
		runTimeout:  defaultRunTimeout,
		settleDelay: defaultSettleDelay,
		base:        base,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the ticker loop. It returns immediately; call Stop to end it.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	if s.runOnStart {
		s.tick()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.base.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	if _, err := s.Trigger(s.base); err != nil && s.base.Err() == nil {
		s.logger.Error("scheduled refresh failed", zap.Error(err))
	}
}

// Trigger runs a refresh-and-publish pass, or joins the one already running.
// ctx bounds only the caller's wait; the shared pass ends when it completes
// or the scheduler stops.
func (s *Scheduler) Trigger(ctx context.Context) (service.RefreshOutcome, error) {
	if s.base.Err() != nil {
		return service.RefreshOutcome{}, ErrStopped
	}

	ch := s.sf.DoChan(flightKey, func() (any, error) {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return service.RefreshOutcome{}, ErrStopped
		}
		s.inflight.Add(1)
		s.mu.Unlock()
		defer s.inflight.Done()

		return s.run()
	})

	select {
	case <-ctx.Done():
		return service.RefreshOutcome{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return service.RefreshOutcome{}, res.Err
		}
		if res.Shared {
			s.logger.Debug("joined in-flight refresh")
		}
		return res.Val.(service.RefreshOutcome), nil
	}
}

func (s *Scheduler) run() (service.RefreshOutcome, error) {
	ctx, cancel := context.WithTimeout(s.base, s.runTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := s.pipeline.RefreshAndPublish(ctx)
	if err != nil {
		if s.base.Err() != nil {
			return service.RefreshOutcome{}, ErrStopped
		}
		return service.RefreshOutcome{}, err
	}

	s.invalidate()
	s.invalidateAfterSettle()

	s.logger.Info("rankings published",
		zap.String("snapshot_id", outcome.Snapshot.ID),
		zap.Int("ranked", len(outcome.Snapshot.Entries)),
		zap.Int("updated", outcome.Refresh.UpdatedCount),
		zap.Int("failed", outcome.Refresh.FailedCount),
		zap.Duration("took", time.Since(start)))

	return outcome, nil
}

func (s *Scheduler) invalidate() {
	if s.invalidator == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	for _, prefix := range s.prefixes {
		n, err := s.invalidator.DeletePrefix(ctx, prefix)
		if err != nil {
			// Entries still expire by TTL.
			s.logger.Warn("cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
			continue
		}
		s.logger.Debug("cache invalidated", zap.String("prefix", prefix), zap.Int("keys", n))
	}
}

// invalidateAfterSettle repeats the invalidation once settleDelay has passed,
// unless the scheduler stops first.
func (s *Scheduler) invalidateAfterSettle() {
	if s.invalidator == nil || s.settleDelay <= 0 {
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.settling.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.settling.Done()

		timer := time.NewTimer(s.settleDelay)
		defer timer.Stop()
		select {
		case <-s.base.Done():
		case <-timer.C:
			s.invalidate()
		}
	}()
}

// Stop cancels any in-flight pass and waits for it and the loop to exit.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()
		s.inflight.Wait()
		s.settling.Wait()
		s.logger.Info("scheduler stopped")
	})
}
