package queue

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucas-de-lima/rinha-payment-worker/internal/model"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const queueKey = "rinha-payments-main-queue"

// stubDispatcher records every payment handed to it and reports a
// caller-controlled outcome, standing in for internal/dispatch.Engine.
type stubDispatcher struct {
	accept  bool
	delay   time.Duration
	seen    int64
	release chan struct{}
}

func (d *stubDispatcher) Dispatch(_ context.Context, _ model.Payment) bool {
	atomic.AddInt64(&d.seen, 1)
	if d.release != nil {
		<-d.release
	} else if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return d.accept
}

// countingStore wraps a store.Client and counts ListPopTail calls.
type countingStore struct {
	store.Client
	pops int64
}

func (s *countingStore) ListPopTail(ctx context.Context, key string, block time.Duration) (string, bool, error) {
	atomic.AddInt64(&s.pops, 1)
	return s.Client.ListPopTail(ctx, key, block)
}

func pushPayment(t *testing.T, s store.Client, key string) model.Payment {
	t.Helper()
	p := model.Payment{CorrelationID: uuid.New(), Amount: 10, RequestedAt: time.Now().UTC()}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, s.ListPushHead(t.Context(), key, string(data)))
	return p
}

func TestTickEmptyQueueMakesOnlyOnePopAttempt(t *testing.T) {
	fake := &countingStore{Client: store.NewFakeClient()}
	disp := &stubDispatcher{accept: true}
	c := New(fake, disp, Config{QueueKey: queueKey, MaxConcurrentPayments: 10, BatchSize: 5}, discardLogger())

	c.tick(t.Context())

	assert.EqualValues(t, 1, atomic.LoadInt64(&fake.pops))
	assert.Zero(t, atomic.LoadInt64(&disp.seen))
	assert.Zero(t, c.Metrics().BatchCount)
}

func TestTickSaturatedConsumerSkipsPop(t *testing.T) {
	fake := store.NewFakeClient()
	pushPayment(t, fake, queueKey)

	disp := &stubDispatcher{accept: true}
	c := New(fake, disp, Config{QueueKey: queueKey, MaxConcurrentPayments: 1, BatchSize: 5}, discardLogger())
	c.metrics.ActiveCount = 1 // already at capacity

	c.tick(t.Context())

	n, err := fake.ListLength(t.Context(), queueKey)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "a saturated consumer must not pop")
}

func TestTickDrainsUpToBatchSize(t *testing.T) {
	fake := store.NewFakeClient()
	for i := 0; i < 3; i++ {
		pushPayment(t, fake, queueKey)
	}

	disp := &stubDispatcher{accept: true}
	c := New(fake, disp, Config{QueueKey: queueKey, MaxConcurrentPayments: 10, BatchSize: 2}, discardLogger())

	c.tick(t.Context())

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&disp.seen) == 2
	}, time.Second, time.Millisecond)

	n, err := fake.ListLength(t.Context(), queueKey)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "only BatchSize items should be popped in one tick")
}

func TestBackpressureKeepsActiveCountWithinLimit(t *testing.T) {
	fake := store.NewFakeClient()
	for i := 0; i < 5; i++ {
		pushPayment(t, fake, queueKey)
	}

	release := make(chan struct{})
	disp := &stubDispatcher{accept: true, release: release}
	c := New(fake, disp, Config{QueueKey: queueKey, MaxConcurrentPayments: 2, BatchSize: 5}, discardLogger())

	c.tick(t.Context())
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&disp.seen) == 2
	}, time.Second, time.Millisecond)

	assert.LessOrEqual(t, c.Metrics().ActiveCount, int64(2), "activeCount must never exceed maxConcurrentPayments")

	close(release)
	require.Eventually(t, func() bool {
		return c.Metrics().ActiveCount == 0
	}, time.Second, time.Millisecond)
}

func TestSubmitDropsMalformedPayload(t *testing.T) {
	fake := store.NewFakeClient()
	disp := &stubDispatcher{accept: true}
	c := New(fake, disp, Config{QueueKey: queueKey, MaxConcurrentPayments: 10, BatchSize: 5}, discardLogger())

	c.submit(t.Context(), "{not json")

	assert.Zero(t, atomic.LoadInt64(&disp.seen))
	assert.Zero(t, c.Metrics().TotalCount)
}

func TestPublisherPushReenqueuesOntoQueue(t *testing.T) {
	fake := store.NewFakeClient()
	pub := NewPublisher(fake, queueKey)

	p := model.Payment{CorrelationID: uuid.New(), Amount: 5, RequestedAt: time.Now().UTC()}
	require.NoError(t, pub.Push(t.Context(), p))

	n, err := fake.ListLength(t.Context(), queueKey)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
