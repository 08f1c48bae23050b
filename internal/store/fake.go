package store

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"
)

// FakeClient is an in-process implementation of Client for unit tests that
// exercise internal/dispatch, internal/queue, and internal/healthcheck
// without a live Redis instance.
type FakeClient struct {
	mu      sync.Mutex
	lists   map[string]*list.List
	strings map[string]fakeEntry
	hashes  map[string]map[string]float64
	leases  map[string]fakeLease
}

type fakeEntry struct {
	value   string
	expires time.Time
}

type fakeLease struct {
	token   string
	expires time.Time
}

// NewFakeClient returns an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		lists:   make(map[string]*list.List),
		strings: make(map[string]fakeEntry),
		hashes:  make(map[string]map[string]float64),
		leases:  make(map[string]fakeLease),
	}
}

func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) ListPushHead(_ context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[key]
	if !ok {
		l = list.New()
		f.lists[key] = l
	}
	l.PushFront(value)
	return nil
}

func (f *FakeClient) ListPopTail(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[key]
	if !ok || l.Len() == 0 {
		return "", false, nil
	}
	back := l.Back()
	l.Remove(back)
	return back.Value.(string), true, nil
}

func (f *FakeClient) ListLength(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[key]
	if !ok {
		return 0, nil
	}
	return int64(l.Len()), nil
}

func (f *FakeClient) GetString(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.strings[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(f.strings, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (f *FakeClient) SetStringWithTTL(_ context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	f.strings[key] = fakeEntry{value: value, expires: expires}
	return nil
}

func (f *FakeClient) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.strings, key)
	return nil
}

func (f *FakeClient) HashIncrementInt(_ context.Context, key, field string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.hashField(key)
	h[field] += float64(delta)
	return int64(h[field]), nil
}

func (f *FakeClient) HashIncrementFloat(_ context.Context, key, field string, delta float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.hashField(key)
	h[field] += delta
	return h[field], nil
}

func (f *FakeClient) hashField(key string) map[string]float64 {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]float64)
		f.hashes[key] = h
	}
	return h
}

func (f *FakeClient) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for k, v := range f.hashes[key] {
		out[k] = formatFloat(v)
	}
	return out, nil
}

func (f *FakeClient) TryAcquireLease(_ context.Context, name string, ttl time.Duration) (LeaseHandle, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.leases[name]; ok && time.Now().Before(l.expires) {
		return nil, false, nil
	}
	token := name + "-token"
	f.leases[name] = fakeLease{token: token, expires: time.Now().Add(ttl)}
	return &fakeLeaseHandle{f: f, name: name, token: token}, true, nil
}

type fakeLeaseHandle struct {
	f     *FakeClient
	name  string
	token string
}

func (h *fakeLeaseHandle) Release(context.Context) error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	if l, ok := h.f.leases[h.name]; ok && l.token == h.token {
		delete(h.f.leases, h.name)
	}
	return nil
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
