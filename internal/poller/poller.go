// Package poller keeps a client-side view of a server collection in sync by periodic
// full fetches, reporting new items separately from general changes.
package poller

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/spec-kit/helpdesk/internal/observability"
)

// Fetcher returns the full current collection.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// ChangeFunc receives the new snapshot after a content change.
type ChangeFunc[T any] func(items []T)

// NewItemFunc receives one item whose identity was not in the previous snapshot.
type NewItemFunc[T any] func(item T)

// Poller drives one view. Each instance owns its last snapshot; create one per view.
type Poller[T any] struct {
	view     string
	identity func(T) string
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu          sync.Mutex
	active      bool
	generation  uint64
	interval    time.Duration
	cancel      context.CancelFunc
	done        chan struct{}
	fingerprint string
	ids         map[string]struct{}
	items       []T

	// per-run signal channels, replaced on every Start
	force   chan struct{}
	retimer chan struct{}
}

// New builds a poller for the named view. identity extracts the stable id of an item.
func New[T any](view string, identity func(T) string, logger *zap.Logger, metrics *observability.Metrics) *Poller[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller[T]{
		view:     view,
		identity: identity,
		logger:   logger.With(zap.String("view", view)),
		metrics:  metrics,
	}
}

// Start fetches immediately and then every interval until Stop or ctx is done.
// It returns false if the poller is already running.
func (p *Poller[T]) Start(ctx context.Context, fetch Fetcher[T], interval time.Duration, onChange ChangeFunc[T], onNewItem NewItemFunc[T]) bool {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return false
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.active = true
	p.generation++
	p.interval = interval
	p.cancel = cancel
	p.done = make(chan struct{})
	p.force = make(chan struct{}, 1)
	p.retimer = make(chan struct{}, 1)
	r := run[T]{
		gen:       p.generation,
		done:      p.done,
		force:     p.force,
		retimer:   p.retimer,
		fetch:     fetch,
		onChange:  onChange,
		onNewItem: onNewItem,
	}
	go p.loop(loopCtx, r)
	return true
}

// Stop disables future fetches. A fetch already running completes but its result is
// discarded. Stopping a stopped poller is a no-op.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.active = false
	p.generation++
	p.cancel()
}

// IsActive reports whether polling is enabled and its loop alive.
func (p *Poller[T]) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// ForceRefresh requests a fetch now. Requests made while a fetch is running coalesce
// into a single follow-up fetch. It does nothing on a stopped poller.
func (p *Poller[T]) ForceRefresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	select {
	case p.force <- struct{}{}:
	default:
	}
}

// SetInterval changes the cadence of a running or future loop.
func (p *Poller[T]) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := p.interval != interval
	p.interval = interval
	if !changed || !p.active {
		return
	}
	select {
	case p.retimer <- struct{}{}:
	default:
	}
}

// Snapshot returns the last accepted collection.
func (p *Poller[T]) Snapshot() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.items...)
}

func (p *Poller[T]) currentInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// current reports whether gen is still the enabled run.
func (p *Poller[T]) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active && p.generation == gen
}

// run is the state owned by one Start..Stop cycle.
type run[T any] struct {
	gen       uint64
	done      chan struct{}
	force     chan struct{}
	retimer   chan struct{}
	fetch     Fetcher[T]
	onChange  ChangeFunc[T]
	onNewItem NewItemFunc[T]
}

func (p *Poller[T]) loop(ctx context.Context, r run[T]) {
	defer close(r.done)
	defer func() {
		p.mu.Lock()
		if p.generation == r.gen {
			p.active = false
			p.cancel()
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.currentInterval())
	defer ticker.Stop()

	p.poll(ctx, r)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.retimer:
			ticker.Reset(p.currentInterval())
			continue
		case <-ticker.C:
		case <-r.force:
		}
		// select picks randomly among ready cases
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx, r)
		// ticks that fired during the fetch are skipped, not queued
		select {
		case <-ticker.C:
		default:
		}
	}
}

func (p *Poller[T]) poll(ctx context.Context, r run[T]) {
	items, err := r.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("poll fetch failed", zap.Error(err))
		}
		p.metrics.RecordFetch(p.view, "failure")
		return
	}
	sum, err := fingerprint(items)
	if err != nil {
		p.logger.Warn("poll snapshot not hashable", zap.Error(err))
		p.metrics.RecordFetch(p.view, "failure")
		return
	}

	p.mu.Lock()
	if p.generation != r.gen {
		p.mu.Unlock()
		p.metrics.RecordFetch(p.view, "discarded")
		return
	}
	if sum == p.fingerprint {
		p.mu.Unlock()
		p.metrics.RecordFetch(p.view, "unchanged")
		return
	}
	baseline := p.ids == nil
	ids := make(map[string]struct{}, len(items))
	var added []T
	for _, item := range items {
		id := p.identity(item)
		if _, dup := ids[id]; dup {
			continue
		}
		ids[id] = struct{}{}
		if _, seen := p.ids[id]; !seen && !baseline {
			added = append(added, item)
		}
	}
	p.fingerprint = sum
	p.ids = ids
	p.items = items
	p.mu.Unlock()

	p.metrics.RecordFetch(p.view, "changed")
	if r.onNewItem != nil {
		for _, item := range added {
			if !p.current(r.gen) {
				return
			}
			r.onNewItem(item)
		}
	}
	if r.onChange != nil && p.current(r.gen) {
		r.onChange(items)
	}
}

func fingerprint[T any](items []T) (string, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
