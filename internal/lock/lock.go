// Package lock serialises writers per group and per account inside one
// process. Locks are always taken before a database transaction begins.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
)

// Key names one lockable resource.
type Key string

// Group keys sort before account keys, so every caller acquires in the same
// order and two operations can never wait on each other.
func GroupKey(code domain.GroupCode) Key {
	return Key("group:" + string(code))
}

func AccountKey(id domain.AccountID) Key {
	return Key("account:" + string(id))
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// WaitObserver receives how long each Acquire waited.
type WaitObserver func(d time.Duration, acquired bool)

type Manager struct {
	mu      sync.Mutex
	entries map[Key]*entry
	timeout time.Duration
	observe WaitObserver
}

func NewManager(timeout time.Duration, observe WaitObserver) *Manager {
	return &Manager{
		entries: make(map[Key]*entry),
		timeout: timeout,
		observe: observe,
	}
}

func (m *Manager) ref(k Key) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[k]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.entries[k] = e
	}
	e.refs++
	return e
}

func (m *Manager) unref(k Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[k]
	e.refs--
	if e.refs == 0 {
		delete(m.entries, k)
	}
}

// Acquire takes every key in canonical order, waiting at most the manager's
// timeout in total. On timeout it releases what it holds and returns
// domain.ErrBusy. The returned func releases all keys.
func (m *Manager) Acquire(ctx context.Context, keys ...Key) (func(), error) {
	keys = canonical(keys)
	start := time.Now()

	wctx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	type holding struct {
		key Key
		e   *entry
	}
	held := make([]holding, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].e.sem.Release(1)
			m.unref(held[i].key)
		}
	}

	for _, k := range keys {
		e := m.ref(k)
		if err := e.sem.Acquire(wctx, 1); err != nil {
			m.unref(k)
			release()
			m.report(time.Since(start), false)
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			logger.Warn("Lock acquisition timed out", "key", k, "waited", time.Since(start))
			return nil, domain.Busy("resource %s is busy", k)
		}
		held = append(held, holding{key: k, e: e})
	}
	m.report(time.Since(start), true)

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (m *Manager) report(d time.Duration, acquired bool) {
	if m.observe != nil {
		m.observe(d, acquired)
	}
}

func canonical(keys []Key) []Key {
	out := make([]Key, 0, len(keys))
	seen := make(map[Key]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		gi, gj := isGroup(out[i]), isGroup(out[j])
		if gi != gj {
			return gi
		}
		return out[i] < out[j]
	})
	return out
}

func isGroup(k Key) bool {
	return len(k) > 6 && k[:6] == "group:"
}
