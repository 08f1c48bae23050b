// Package healthcache reads and writes the shared, TTL-bounded HealthView
// per processor. It is a thin layer over internal/store rather than an
// in-process map, since the cache must live in the shared store so sibling
// instances observe the same view.
package healthcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lucas-de-lima/rinha-payment-worker/internal/model"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/store"
)

// TTL is slightly under the orchestrator's probe interval so a cache entry
// expires naturally if the leader stops refreshing it.
const TTL = 4900 * time.Millisecond

func keyFor(pt model.ProcessorType) string {
	switch pt {
	case model.ProcessorDefault:
		return "payment_processor_health:default"
	default:
		return "payment_processor_health:fallback"
	}
}

// Cache reads and writes HealthView entries in the shared store.
type Cache struct {
	store store.Client
}

// New builds a Cache backed by the given store client.
func New(s store.Client) *Cache {
	return &Cache{store: s}
}

// Get returns the current HealthView for a processor. ok=false means there
// is no fresh opinion (missing or expired entry).
func (c *Cache) Get(ctx context.Context, pt model.ProcessorType) (view model.HealthView, ok bool, err error) {
	raw, found, err := c.store.GetString(ctx, keyFor(pt))
	if err != nil {
		return model.HealthView{}, false, fmt.Errorf("healthcache get %s: %w", pt, err)
	}
	if !found {
		return model.HealthView{}, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return model.HealthView{}, false, fmt.Errorf("healthcache decode %s: %w", pt, err)
	}
	return view, true, nil
}

// Set writes a fresh HealthView with the standard TTL.
func (c *Cache) Set(ctx context.Context, pt model.ProcessorType, view model.HealthView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("healthcache encode %s: %w", pt, err)
	}
	if err := c.store.SetStringWithTTL(ctx, keyFor(pt), string(data), TTL); err != nil {
		return fmt.Errorf("healthcache set %s: %w", pt, err)
	}
	return nil
}

// Clear removes the cached view for a processor, used when a probe fails
// and the stale view should not linger past its natural TTL.
func (c *Cache) Clear(ctx context.Context, pt model.ProcessorType) error {
	if err := c.store.Delete(ctx, keyFor(pt)); err != nil {
		return fmt.Errorf("healthcache clear %s: %w", pt, err)
	}
	return nil
}
