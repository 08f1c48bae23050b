// Package model defines the wire types shared between this worker and the
// sibling services that enqueue payments and read the per-processor history
// lists. Field names and JSON shapes here are a compatibility contract, not
// an implementation detail.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProcessorType identifies which of the two processors accepted a payment.
type ProcessorType string

const (
	ProcessorDefault  ProcessorType = "DEFAULT"
	ProcessorFallback ProcessorType = "FALLBACK"
)

func (p ProcessorType) valid() bool {
	switch p {
	case ProcessorDefault, ProcessorFallback:
		return true
	default:
		return false
	}
}

// Status is the in-memory lifecycle marker for a Payment within one
// dispatch. It is never a cross-process invariant: nothing reads Status
// across a restart, but it is still serialised back onto the queue so that
// RetryCount and ProcessorType survive a re-enqueue.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusRetry      Status = "RETRY"
)

// Payment is the unit of work drained from the main queue.
type Payment struct {
	CorrelationID        uuid.UUID      `json:"correlationId"`
	Amount               float64        `json:"amount"`
	RequestedAt          time.Time      `json:"requestedAt"`
	PaymentProcessorType *ProcessorType `json:"paymentProcessorType,omitempty"`
	Status               Status         `json:"status"`
	RetryCount           int            `json:"retryCount"`
}

// paymentWire mirrors Payment but uses the ISO-8601 millisecond layout the
// external readers expect for requestedAt, instead of RFC3339Nano.
type paymentWire struct {
	CorrelationID        uuid.UUID      `json:"correlationId"`
	Amount               float64        `json:"amount"`
	RequestedAt          string         `json:"requestedAt"`
	PaymentProcessorType *ProcessorType `json:"paymentProcessorType,omitempty"`
	Status               Status         `json:"status"`
	RetryCount           int            `json:"retryCount"`
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// MarshalJSON serialises RequestedAt as millisecond-precision ISO-8601 UTC,
// matching the wire format sibling services expect.
func (p Payment) MarshalJSON() ([]byte, error) {
	return json.Marshal(paymentWire{
		CorrelationID:        p.CorrelationID,
		Amount:               p.Amount,
		RequestedAt:          p.RequestedAt.UTC().Format(timestampLayout),
		PaymentProcessorType: p.PaymentProcessorType,
		Status:               p.Status,
		RetryCount:           p.RetryCount,
	})
}

// UnmarshalJSON accepts both the millisecond layout above and plain
// RFC3339, since the producer enqueuing payments is an external collaborator
// whose exact timestamp precision is not under this worker's control.
func (p *Payment) UnmarshalJSON(data []byte) error {
	var wire paymentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode payment: %w", err)
	}
	if wire.PaymentProcessorType != nil && !wire.PaymentProcessorType.valid() {
		return fmt.Errorf("decode payment: invalid paymentProcessorType %q", *wire.PaymentProcessorType)
	}

	ts, err := time.Parse(timestampLayout, wire.RequestedAt)
	if err != nil {
		ts, err = time.Parse(time.RFC3339Nano, wire.RequestedAt)
		if err != nil {
			return fmt.Errorf("decode payment: parse requestedAt %q: %w", wire.RequestedAt, err)
		}
	}

	p.CorrelationID = wire.CorrelationID
	p.Amount = wire.Amount
	p.RequestedAt = ts.UTC()
	p.PaymentProcessorType = wire.PaymentProcessorType
	p.Status = wire.Status
	p.RetryCount = wire.RetryCount
	return nil
}

// MarkProcessor sets the processor that accepted the payment. Callers must
// only invoke this once, after a successful submission.
func (p *Payment) MarkProcessor(pt ProcessorType) {
	v := pt
	p.PaymentProcessorType = &v
}

// HealthView is a snapshot of one processor's readiness as published by the
// Health-Check Orchestrator and consumed by the Dispatch Engine.
type HealthView struct {
	Failing         bool      `json:"failing"`
	MinResponseTime int       `json:"minResponseTime"`
	LastCheckedAt   time.Time `json:"lastCheckedAt"`
}
