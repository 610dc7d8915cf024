package config

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freezegate/freezegate/internal/metrics"
	"github.com/freezegate/freezegate/internal/schedule"
	"github.com/freezegate/freezegate/internal/store"
)

// RecordName is the persisted-records key for the policy body.
const RecordName = "policy"

// watchClientGuard bounds a single watch subscription's lifetime; past it
// we treat the stream as stale and re-subscribe.
const watchClientGuard = 65 * time.Second

// resubscribeBackoff is how long we wait before re-attempting a failed
// Watch() call.
const resubscribeBackoff = 5 * time.Second

// Loader parses the policy record into typed configuration and keeps it
// reactively synchronized.
type Loader struct {
	backend   store.Store
	schedules *schedule.Store
	logger    *slog.Logger

	useWatch bool
	cacheTTL time.Duration

	mu     sync.RWMutex
	config *Policy
	ready  bool

	reloadErrors atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Loader at construction.
type Option func(*Loader)

// WithPolling disables watch mode in favor of the polling fallback at the
// given interval.
func WithPolling(interval time.Duration) Option {
	return func(l *Loader) {
		l.useWatch = false
		l.cacheTTL = interval
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader constructs a Loader in watch mode by default.
func NewLoader(backend store.Store, schedules *schedule.Store, opts ...Option) *Loader {
	l := &Loader{
		backend:   backend,
		schedules: schedules,
		logger:    slog.Default(),
		useWatch:  true,
		cacheTTL:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start performs one blocking load (with bounded retry), marks the loader
// ready, then launches the watch or polling routine.
func (l *Loader) Start(ctx context.Context) error {
	if err := l.loadWithRetry(ctx); err != nil {
		// Even after exhausting retries we install defaults and continue;
		// IsReady still becomes true because a (default) config exists.
		l.logger.Error("config loader: initial load failed after retries, using defaults", "error", err)
		l.installDefaults()
	}

	l.mu.Lock()
	l.ready = true
	l.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	if l.useWatch {
		go l.watchLoop(runCtx)
	} else {
		go l.pollLoop(runCtx)
	}
	return nil
}

// Stop terminates the background routine and waits for it to exit.
func (l *Loader) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

// IsReady reports whether an initial load has completed.
func (l *Loader) IsReady() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// GetConfig returns a defensive copy of the current policy snapshot.
func (l *Loader) GetConfig() *Policy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.config == nil {
		return nil
	}
	return l.config.Clone()
}

// GetReloadErrors returns the cumulative count of failed reload attempts.
func (l *Loader) GetReloadErrors() int64 {
	return l.reloadErrors.Load()
}

func (l *Loader) loadWithRetry(ctx context.Context) error {
	const attempts = 5
	backoff := 2 * time.Second
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		if err := l.reload(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// reload re-reads the policy record and the schedule store, installing the
// parsed result as the current config. On failure, the previous good
// config is retained and reloadErrors is incremented.
func (l *Loader) reload(ctx context.Context) error {
	data, err := l.backend.Read(ctx, RecordName)
	if err != nil {
		if store.IsNotFound(err) {
			l.installDefaults()
			return nil
		}
		l.reloadErrors.Add(1)
		metrics.ConfigReloadErrorsTotal.Inc()
		return err
	}

	policy := ParseRecord(data)
	if l.schedules != nil {
		if err := l.schedules.Reload(ctx); err != nil && !store.IsNotFound(err) {
			l.logger.Warn("config loader: schedule reload failed, keeping cached schedules", "error", err)
		}
		policy.FreezeSchedule = l.schedules.List()
	}

	l.mu.Lock()
	l.config = policy
	l.mu.Unlock()
	return nil
}

func (l *Loader) installDefaults() {
	policy := Default()
	if l.schedules != nil {
		policy.FreezeSchedule = l.schedules.List()
	}
	l.mu.Lock()
	l.config = policy
	l.mu.Unlock()
	l.logger.Warn("config loader: policy record missing or deleted, installed defaults")
}

// watchLoop runs on a dedicated goroutine so the blocking watch stream
// never starves other scheduling. It re-subscribes whenever the stream
// ends, errors, or the client-side guard timeout elapses.
func (l *Loader) watchLoop(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		subCtx, cancel := context.WithTimeout(ctx, watchClientGuard)
		ch, err := l.backend.Watch(subCtx, RecordName)
		if err != nil {
			cancel()
			l.logger.Warn("config loader: watch subscribe failed, retrying", "error", err)
			select {
			case <-time.After(resubscribeBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		l.drainWatch(ctx, ch)
		cancel()
	}
}

// drainWatch forwards watch events into reload calls. It deliberately does
// not buffer multiple pending events itself: the backend's channel may
// drop events while this loop is behind (memstore does), and since every
// event triggers a full re-read of the record, any event that arrives
// brings the loader to the record's current state.
func (l *Loader) drainWatch(ctx context.Context, ch <-chan store.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case store.EventAdded, store.EventModified:
				if err := l.reload(ctx); err != nil {
					l.logger.Error("config loader: reload failed", "error", err)
				}
			case store.EventDeleted:
				l.installDefaults()
			case store.EventError:
				l.logger.Warn("config loader: watch error, resubscribing", "error", ev.Err)
				return
			}
		}
	}
}

func (l *Loader) pollLoop(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.cacheTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.reload(ctx); err != nil {
				l.logger.Error("config loader: poll reload failed", "error", err)
			}
		}
	}
}
