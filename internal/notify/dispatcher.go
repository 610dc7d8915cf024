package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/freezegate/freezegate/internal/metrics"
)

// rateLimitWindow is the dedup window for identical (eventType, namespace)
// keys.
const rateLimitWindow = 60 * time.Second

// Dispatcher fans events out to all subscribed sinks in parallel, swallows
// per-sink errors, and deduplicates identical keys within a 60s window.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewDispatcher constructs a Dispatcher over the given sinks.
func NewDispatcher(sinks []Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sinks:  sinks,
		logger: logger,
		seen:   map[string]time.Time{},
		now:    time.Now,
	}
}

// Dispatch fans eventType/namespace/payload out to every subscribed sink
// that isn't currently rate-limited. Delivery runs in the background;
// callers never block on sink I/O.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType, namespace string, payload map[string]any) {
	if d.limited(eventType, namespace) {
		return
	}

	event := Event{Type: eventType, Namespace: namespace, Data: payload}
	go d.deliverAll(context.WithoutCancel(ctx), event)
}

func (d *Dispatcher) limited(eventType, namespace string) bool {
	key := eventType + "|" + namespace
	if namespace == "" {
		key = eventType + "|global"
	}

	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.seen[key]; ok && now.Sub(last) < rateLimitWindow {
		return true
	}
	d.seen[key] = now
	return false
}

func (d *Dispatcher) deliverAll(ctx context.Context, event Event) {
	var wg sync.WaitGroup
	for _, sink := range d.sinks {
		if !sink.Supports(event.Type) {
			continue
		}
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := s.Deliver(ctx, event); err != nil {
				d.logger.Warn("notify: sink delivery failed", "sink", s.Name(), "event", event.Type, "error", err)
				metrics.NotificationDeliveriesTotal.WithLabelValues(s.Name(), "failure").Inc()
				return
			}
			metrics.NotificationDeliveriesTotal.WithLabelValues(s.Name(), "success").Inc()
		}(sink)
	}
	wg.Wait()
}
