// Package queue implements the queue consumer: a periodic tick-loop that
// pops work off the main queue in bounded batches at controlled
// concurrency, fanning each popped payment out onto its own goroutine
// running the dispatch engine. Backpressure is expressed purely as an
// in-flight counter rather than a fixed worker-pool size, since the limit
// that matters is concurrent payments in flight, not goroutine count.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lucas-de-lima/rinha-payment-worker/internal/model"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/store"
)

// firstPopBlock is the short-blocking window for the first pop of a tick,
// trading a small amount of latency for fewer idle round-trips to the
// shared store.
const firstPopBlock = 100 * time.Millisecond

// Dispatcher runs the Dispatch Engine for one popped payment. This is
// internal/dispatch.Engine in production; tests supply a stub.
type Dispatcher interface {
	Dispatch(ctx context.Context, p model.Payment) bool
}

// Config carries the Consumer's tunables.
type Config struct {
	QueueKey              string
	MaxConcurrentPayments int
	BatchSize             int
	ExecutionDelay        time.Duration
}

// Metrics holds the atomic counters the Consumer maintains.
type Metrics struct {
	ActiveCount    int64
	CompletedCount int64
	TotalCount     int64
	BatchCount     int64
}

// Snapshot reads all counters without synchronisation beyond the atomics
// themselves.
func (m *Metrics) Snapshot() Metrics {
	return Metrics{
		ActiveCount:    atomic.LoadInt64(&m.ActiveCount),
		CompletedCount: atomic.LoadInt64(&m.CompletedCount),
		TotalCount:     atomic.LoadInt64(&m.TotalCount),
		BatchCount:     atomic.LoadInt64(&m.BatchCount),
	}
}

// Consumer periodically pops payments off the main queue and fans them out
// to the Dispatch Engine under a bounded in-flight count.
type Consumer struct {
	store   store.Client
	dispose Dispatcher
	cfg     Config
	log     *slog.Logger
	metrics Metrics
}

// New builds a Consumer.
func New(s store.Client, dispatcher Dispatcher, cfg Config, log *slog.Logger) *Consumer {
	return &Consumer{store: s, dispose: dispatcher, cfg: cfg, log: log}
}

// Metrics returns the Consumer's live counters.
func (c *Consumer) Metrics() Metrics {
	return c.metrics.Snapshot()
}

// Run ticks every cfg.ExecutionDelay until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ExecutionDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick computes the available concurrency budget, pops up to one batch's
// worth of payments off the queue, and fans each one out for dispatch.
func (c *Consumer) tick(ctx context.Context) {
	active := atomic.LoadInt64(&c.metrics.ActiveCount)
	availableSlots := int64(c.cfg.MaxConcurrentPayments) - active
	if availableSlots <= 0 {
		return
	}

	currentBatch := availableSlots
	if int64(c.cfg.BatchSize) < currentBatch {
		currentBatch = int64(c.cfg.BatchSize)
	}

	raw, ok, err := c.store.ListPopTail(ctx, c.cfg.QueueKey, firstPopBlock)
	if err != nil {
		c.log.Warn("queue pop failed, skipping tick", "err", err)
		return
	}
	if !ok {
		return
	}

	atomic.AddInt64(&c.metrics.BatchCount, 1)
	c.submit(ctx, raw)

	for i := int64(1); i < currentBatch; i++ {
		raw, ok, err := c.store.ListPopTail(ctx, c.cfg.QueueKey, 0)
		if err != nil {
			c.log.Warn("queue pop failed mid-batch", "err", err)
			return
		}
		if !ok {
			return
		}
		c.submit(ctx, raw)
	}
}

// submit decodes one queued payload and fans it out to the dispatch engine
// on its own goroutine. A decode failure is logged and the malformed
// message is dropped, since it cannot be retried meaningfully.
func (c *Consumer) submit(ctx context.Context, raw string) {
	var p model.Payment
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		c.log.Error("dropping malformed queued payment", "err", err, "raw", raw)
		return
	}

	atomic.AddInt64(&c.metrics.ActiveCount, 1)
	atomic.AddInt64(&c.metrics.TotalCount, 1)

	go func() {
		defer atomic.AddInt64(&c.metrics.ActiveCount, -1)
		if c.dispose.Dispatch(ctx, p) {
			atomic.AddInt64(&c.metrics.CompletedCount, 1)
		}
	}()
}

// Publisher adapts store.Client into dispatch.Publisher: dispatch depends
// only on this narrow interface, never on this package directly, which
// keeps the two packages from importing each other.
type Publisher struct {
	store store.Client
	key   string
}

// NewPublisher builds a Publisher that pushes back onto the given queue key.
func NewPublisher(s store.Client, key string) *Publisher {
	return &Publisher{store: s, key: key}
}

// Push re-serialises p and head-pushes it onto the main queue.
func (p *Publisher) Push(ctx context.Context, payment model.Payment) error {
	data, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("re-enqueue payment %s: %w", payment.CorrelationID, err)
	}
	if err := p.store.ListPushHead(ctx, p.key, string(data)); err != nil {
		return fmt.Errorf("re-enqueue payment %s: %w", payment.CorrelationID, err)
	}
	return nil
}
