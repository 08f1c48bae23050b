// Package history appends completed payments onto the per-processor
// history list consumed by an external reader. Failures here are logged
// and swallowed: the payment has already been accepted by the processor,
// so a bookkeeping failure must not propagate back to the dispatch caller.
package history

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/lucas-de-lima/rinha-payment-worker/internal/model"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/store"
)

func keyFor(pt model.ProcessorType) string {
	switch pt {
	case model.ProcessorDefault:
		return "payments:history:default"
	default:
		return "payments:history:fallback"
	}
}

// Recorder appends completed payments to their processor's history list.
type Recorder struct {
	store store.Client
	log   *slog.Logger
}

// New builds a Recorder backed by the given store client.
func New(s store.Client, log *slog.Logger) *Recorder {
	return &Recorder{store: s, log: log}
}

// Record appends p onto the history list for the processor recorded on it.
// p.PaymentProcessorType must be set — callers only invoke Record after a
// successful dispatch.
func (r *Recorder) Record(ctx context.Context, p model.Payment) {
	if p.PaymentProcessorType == nil {
		r.log.Error("record called without a processor type set", "correlationId", p.CorrelationID)
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		r.log.Error("failed to serialise payment for history", "correlationId", p.CorrelationID, "err", err)
		return
	}

	if err := r.store.ListPushHead(ctx, keyFor(*p.PaymentProcessorType), string(data)); err != nil {
		r.log.Warn("failed to append payment to history list",
			"correlationId", p.CorrelationID, "processor", *p.PaymentProcessorType, "err", err)
	}
}
