// Package dispatch implements the single-payment dispatch-and-retry flow:
// choose a processor from the cached health view, call it, and either
// record success to history or re-enqueue the payment.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/lucas-de-lima/rinha-payment-worker/internal/healthcache"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/history"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/model"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/processor"
)

// Publisher re-enqueues a payment onto the main queue. internal/queue's
// adapter implements this over store.Client.ListPushHead — dispatch depends
// only on this narrow interface so there is no import cycle between
// dispatch (which re-enqueues) and queue (which pops).
type Publisher interface {
	Push(ctx context.Context, p model.Payment) error
}

// Submitter is the narrow slice of *processor.Client the engine needs.
// Declaring it here (rather than depending on the concrete type) lets tests
// exercise the attempt loop's health/ordering logic with a stub instead of
// a live HTTP server.
type Submitter interface {
	Submit(ctx context.Context, pt model.ProcessorType, p model.Payment) processor.SubmitOutcome
}

// Config carries the retry-ceiling and missing-health-policy knobs.
type Config struct {
	AssumeHealthyWhenUnknown    bool
	MaxRetryAttemptsPerDispatch int
	MaxReenqueueCount           int
}

// Engine runs the Dispatch & Retry Engine for one payment at a time. It is
// safe to call Dispatch concurrently from multiple goroutines — all shared
// state (health cache, history, queue) lives in the data store.
type Engine struct {
	processors Submitter
	health     *healthcache.Cache
	recorder   *history.Recorder
	publisher  Publisher
	cfg        Config
	log        *slog.Logger
}

// New builds a dispatch Engine.
func New(processors Submitter, health *healthcache.Cache, recorder *history.Recorder, publisher Publisher, cfg Config, log *slog.Logger) *Engine {
	return &Engine{
		processors: processors,
		health:     health,
		recorder:   recorder,
		publisher:  publisher,
		cfg:        cfg,
		log:        log,
	}
}

// order is the processor preference: DEFAULT first (lower fee), then
// FALLBACK.
var order = [2]model.ProcessorType{model.ProcessorDefault, model.ProcessorFallback}

// Dispatch runs the bounded attempt loop for one payment and reports
// whether it was accepted by a processor this run.
func (e *Engine) Dispatch(ctx context.Context, p model.Payment) (accepted bool) {
	p.Status = model.StatusProcessing

	attempts := e.cfg.MaxRetryAttemptsPerDispatch
	if attempts <= 0 {
		attempts = 1
	}

	for round := 0; round < attempts; round++ {
		for _, pt := range order {
			if !e.healthy(ctx, pt) {
				continue
			}

			outcome := e.processors.Submit(ctx, pt, p)
			if outcome != processor.Accepted {
				e.log.Debug("submit rejected", "correlationId", p.CorrelationID, "processor", pt, "round", round)
				continue
			}

			p.MarkProcessor(pt)
			p.Status = model.StatusSuccess
			e.log.Info("payment accepted", "correlationId", p.CorrelationID, "processor", pt, "round", round)
			e.recorder.Record(ctx, p)
			return true
		}
	}

	e.fail(ctx, p)
	return false
}

// healthy consults the health cache for pt. A missing view is treated as
// unhealthy (skip) unless AssumeHealthyWhenUnknown is set.
func (e *Engine) healthy(ctx context.Context, pt model.ProcessorType) bool {
	view, ok, err := e.health.Get(ctx, pt)
	if err != nil {
		e.log.Warn("health cache read failed, treating as unknown", "processor", pt, "err", err)
		ok = false
	}
	if !ok {
		return e.cfg.AssumeHealthyWhenUnknown
	}
	return !view.Failing
}

// fail applies the re-enqueue/terminal-failure policy.
func (e *Engine) fail(ctx context.Context, p model.Payment) {
	if p.RetryCount >= e.cfg.MaxReenqueueCount {
		p.Status = model.StatusFailed
		e.log.Error("payment exhausted retry ceiling, terminal failure",
			"correlationId", p.CorrelationID, "retryCount", p.RetryCount)
		return
	}

	p.RetryCount++
	p.Status = model.StatusRetry

	if err := e.publisher.Push(ctx, p); err != nil {
		e.log.Error("failed to re-enqueue payment", "correlationId", p.CorrelationID, "err", err)
		return
	}
	e.log.Info("payment re-enqueued", "correlationId", p.CorrelationID, "retryCount", p.RetryCount)
}
