// Package healthcheck implements a leader-elected periodic probe of both
// processors, publishing results into the shared health cache. The
// Idle -> ProbeInFlight -> Publishing -> Idle progression is represented
// as an explicit typed state rather than inferred from other fields, so
// tests and diagnostics can assert on it directly.
package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucas-de-lima/rinha-payment-worker/internal/healthcache"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/model"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/processor"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/store"
)

// State is the orchestrator's tick-local state machine.
type State int32

const (
	Idle State = iota
	ProbeInFlight
	Publishing
)

func (s State) String() string {
	switch s {
	case ProbeInFlight:
		return "ProbeInFlight"
	case Publishing:
		return "Publishing"
	default:
		return "Idle"
	}
}

const (
	leaseName     = "healthcheck-leader-lock-registry:global-health-check-leader-task"
	leaseTTL      = 12 * time.Second
	probeDeadline = 5 * time.Second
	tickInterval  = 4950 * time.Millisecond
)

// Prober is the narrow slice of *processor.Client the orchestrator needs.
// Declaring it here lets tests exercise leader election and the state
// machine with a stub instead of a live HTTP server.
type Prober interface {
	Probe(ctx context.Context, pt model.ProcessorType) (model.HealthView, bool)
}

// Orchestrator runs the leader-elected health probe loop.
type Orchestrator struct {
	store      store.Client
	processors Prober
	cache      *healthcache.Cache
	log        *slog.Logger
	state      atomic.Int32
}

// New builds a health-check Orchestrator.
func New(s store.Client, processors Prober, cache *healthcache.Cache, log *slog.Logger) *Orchestrator {
	return &Orchestrator{store: s, processors: processors, cache: cache, log: log}
}

// State reports the orchestrator's current tick state, for tests and
// diagnostics.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run ticks every ~4950ms until ctx is cancelled. The lease is held for the
// duration of one tick and released at its end, so at most one instance
// across the fleet probes at any instant; instances whose ticks fall at
// different moments of the same interval can each probe once. A tick that
// does not acquire the lease returns immediately and leaves State at Idle.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	handle, acquired, err := o.store.TryAcquireLease(ctx, leaseName, leaseTTL)
	if err != nil {
		o.log.Warn("lease acquisition failed", "err", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := handle.Release(ctx); err != nil {
			o.log.Warn("lease release failed", "err", err)
		}
	}()

	o.state.Store(int32(ProbeInFlight))
	ctx, cancel := context.WithTimeout(ctx, probeDeadline)
	defer cancel()

	// Probe both processors in parallel; each call also carries its own
	// internal 4s deadline (internal/processor.Client), with this ctx's
	// 5s deadline as the overall join ceiling.
	var wg sync.WaitGroup
	var defaultView, fallbackView model.HealthView
	var defaultOK, fallbackOK bool

	wg.Add(2)
	go func() {
		defer wg.Done()
		defaultView, defaultOK = o.processors.Probe(ctx, model.ProcessorDefault)
	}()
	go func() {
		defer wg.Done()
		fallbackView, fallbackOK = o.processors.Probe(ctx, model.ProcessorFallback)
	}()
	wg.Wait()

	o.state.Store(int32(Publishing))
	o.publish(ctx, model.ProcessorDefault, defaultView, defaultOK)
	o.publish(ctx, model.ProcessorFallback, fallbackView, fallbackOK)

	o.state.Store(int32(Idle))
}

// publish writes a successful probe into the cache, or clears a stale
// entry on failure so a down processor is not mistaken for a fresh one.
func (o *Orchestrator) publish(ctx context.Context, pt model.ProcessorType, view model.HealthView, ok bool) {
	if ok {
		if err := o.cache.Set(ctx, pt, view); err != nil {
			o.log.Warn("failed to publish health view", "processor", pt, "err", err)
		}
		return
	}
	if err := o.cache.Clear(ctx, pt); err != nil {
		o.log.Warn("failed to clear stale health view", "processor", pt, "err", err)
	}
}
