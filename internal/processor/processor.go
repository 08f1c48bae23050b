// Package processor implements the outbound HTTP client for the two
// external payment-processor endpoints, sharing one connection-pooled
// *http.Client across both so repeated calls reuse TCP connections instead
// of paying a new handshake per request.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lucas-de-lima/rinha-payment-worker/internal/model"
)

const (
	connectTimeout  = 2 * time.Second
	healthDeadline  = 4 * time.Second
	submitDeadline  = 10 * time.Second
	acceptedPhrase  = "payment processed successfully"
	replayPhrase    = "correlationid already exists"
	healthCheckPath = "/payments/service-health"
	submitPath      = "/payments"
)

// SubmitOutcome classifies the result of a Submit call.
type SubmitOutcome int

const (
	// Accepted covers both a fresh 200 success and a 422 idempotent
	// replay — both must be treated as success exactly once this run.
	Accepted SubmitOutcome = iota
	Rejected
)

// Client calls the two processor HTTP endpoints.
type Client struct {
	defaultURL  string
	fallbackURL string
	http        *http.Client
	log         *slog.Logger
}

// New builds a Client sharing one pooled http.Client across both processor
// endpoints.
func New(defaultURL, fallbackURL string, log *slog.Logger) *Client {
	return &Client{
		defaultURL:  strings.TrimRight(defaultURL, "/"),
		fallbackURL: strings.TrimRight(fallbackURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        200,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     30 * time.Second,
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		log: log,
	}
}

func (c *Client) baseURL(pt model.ProcessorType) string {
	if pt == model.ProcessorDefault {
		return c.defaultURL
	}
	return c.fallbackURL
}

// Probe performs a health-check GET against the given processor. It returns
// ok=false (no error) on any non-2xx status, a 429 rate-limit, or a
// timeout/transport error — the caller treats "no opinion" the same as
// "unhealthy" either way.
func (c *Client) Probe(ctx context.Context, pt model.ProcessorType) (view model.HealthView, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, healthDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(pt)+healthCheckPath, nil)
	if err != nil {
		c.log.Warn("probe request build failed", "processor", pt, "err", err)
		return model.HealthView{}, false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("probe call failed", "processor", pt, "err", err)
		return model.HealthView{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug("probe non-2xx", "processor", pt, "status", resp.StatusCode)
		return model.HealthView{}, false
	}

	var body struct {
		Failing         bool `json:"failing"`
		MinResponseTime int  `json:"minResponseTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Warn("probe decode failed", "processor", pt, "err", err)
		return model.HealthView{}, false
	}

	return model.HealthView{
		Failing:         body.Failing,
		MinResponseTime: body.MinResponseTime,
		LastCheckedAt:   time.Now().UTC(),
	}, true
}

// submitBody is the wire shape posted to {base}/payments.
type submitBody struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
	RequestedAt   string  `json:"requestedAt"`
}

// Submit posts a payment to the given processor and classifies the result.
func (c *Client) Submit(ctx context.Context, pt model.ProcessorType, p model.Payment) SubmitOutcome {
	ctx, cancel := context.WithTimeout(ctx, submitDeadline)
	defer cancel()

	body := submitBody{
		CorrelationID: p.CorrelationID.String(),
		Amount:        p.Amount,
		RequestedAt:   p.RequestedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		c.log.Error("submit marshal failed", "correlationId", p.CorrelationID, "err", err)
		return Rejected
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(pt)+submitPath, bytes.NewReader(payload))
	if err != nil {
		c.log.Warn("submit request build failed", "processor", pt, "err", err)
		return Rejected
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("submit call failed", "processor", pt, "correlationId", p.CorrelationID, "err", err)
		return Rejected
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	text := string(respBody)

	switch {
	case resp.StatusCode == http.StatusOK && strings.Contains(text, acceptedPhrase):
		return Accepted
	case resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(text), replayPhrase):
		c.log.Info("idempotent replay treated as success", "processor", pt, "correlationId", p.CorrelationID)
		return Accepted
	default:
		c.log.Debug("submit rejected", "processor", pt, "status", resp.StatusCode, "correlationId", p.CorrelationID)
		return Rejected
	}
}
