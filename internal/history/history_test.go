package history

import (
	"encoding/json"
	"io"
	"log/slog"
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

func TestRecordAppendsToProcessorList(t *testing.T) {
	s := store.NewFakeClient()
	r := New(s, discardLogger())

	pt := model.ProcessorDefault
	p := model.Payment{
		CorrelationID:        uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Amount:               19.90,
		RequestedAt:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PaymentProcessorType: &pt,
		Status:               model.StatusSuccess,
	}

	r.Record(t.Context(), p)

	raw, ok, err := s.ListPopTail(t.Context(), "payments:history:default", 0)
	require.NoError(t, err)
	require.True(t, ok)

	var decoded model.Payment
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, p.CorrelationID, decoded.CorrelationID)
	require.NotNil(t, decoded.PaymentProcessorType)
	assert.Equal(t, model.ProcessorDefault, *decoded.PaymentProcessorType)
}

func TestRecordWithoutProcessorTypeIsANoop(t *testing.T) {
	s := store.NewFakeClient()
	r := New(s, discardLogger())

	r.Record(t.Context(), model.Payment{CorrelationID: uuid.New()})

	n, err := s.ListLength(t.Context(), "payments:history:default")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordFallbackUsesFallbackList(t *testing.T) {
	s := store.NewFakeClient()
	r := New(s, discardLogger())

	pt := model.ProcessorFallback
	r.Record(t.Context(), model.Payment{CorrelationID: uuid.New(), PaymentProcessorType: &pt})

	n, err := s.ListLength(t.Context(), "payments:history:fallback")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
