package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucas-de-lima/rinha-payment-worker/internal/healthcache"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/model"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubProber scripts Probe outcomes and counts calls, standing in for
// internal/processor.Client.
type stubProber struct {
	view    model.HealthView
	ok      bool
	calls   int64
	onProbe func()
}

func (p *stubProber) Probe(_ context.Context, _ model.ProcessorType) (model.HealthView, bool) {
	atomic.AddInt64(&p.calls, 1)
	if p.onProbe != nil {
		p.onProbe()
	}
	return p.view, p.ok
}

func TestTickPublishesHealthyViewForBothProcessors(t *testing.T) {
	fake := store.NewFakeClient()
	cache := healthcache.New(fake)
	prober := &stubProber{view: model.HealthView{Failing: false, MinResponseTime: 10}, ok: true}
	o := New(fake, prober, cache, discardLogger())

	o.tick(t.Context())

	assert.EqualValues(t, 2, atomic.LoadInt64(&prober.calls), "both processors should be probed")
	assert.Equal(t, Idle, o.State(), "state resets to Idle after a completed tick")

	view, ok, err := cache.Get(t.Context(), model.ProcessorDefault)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, view.Failing)

	view, ok, err = cache.Get(t.Context(), model.ProcessorFallback)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, view.Failing)
}

func TestTickClearsCacheOnFailedProbe(t *testing.T) {
	fake := store.NewFakeClient()
	cache := healthcache.New(fake)
	require.NoError(t, cache.Set(t.Context(), model.ProcessorDefault, model.HealthView{Failing: false}))

	prober := &stubProber{ok: false}
	o := New(fake, prober, cache, discardLogger())

	o.tick(t.Context())

	_, ok, err := cache.Get(t.Context(), model.ProcessorDefault)
	require.NoError(t, err)
	assert.False(t, ok, "a failed probe should clear any stale cached view")
}

// Leader exclusivity: two orchestrators share one store; while A holds the
// lease in the middle of its tick, B's tick must not acquire it or probe.
func TestTickLeaderExclusivityAcrossSharedStore(t *testing.T) {
	fake := store.NewFakeClient()
	cache := healthcache.New(fake)

	proberB := &stubProber{view: model.HealthView{Failing: false}, ok: true}
	b := New(fake, proberB, cache, discardLogger())
	proberA := &stubProber{
		view:    model.HealthView{Failing: false},
		ok:      true,
		onProbe: func() { b.tick(t.Context()) },
	}
	a := New(fake, proberA, cache, discardLogger())

	a.tick(t.Context())

	totalCalls := atomic.LoadInt64(&proberA.calls) + atomic.LoadInt64(&proberB.calls)
	assert.EqualValues(t, 2, totalCalls, "only one orchestrator should win the lease and probe per tick")
}

func TestTickSkipsWhenLeaseNotAcquired(t *testing.T) {
	fake := store.NewFakeClient()
	cache := healthcache.New(fake)
	_, acquired, err := fake.TryAcquireLease(t.Context(), leaseName, leaseTTL)
	require.NoError(t, err)
	require.True(t, acquired)

	prober := &stubProber{ok: true}
	o := New(fake, prober, cache, discardLogger())

	o.tick(t.Context())

	assert.Zero(t, atomic.LoadInt64(&prober.calls))
	assert.Equal(t, Idle, o.State())
}
