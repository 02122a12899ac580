// Package progress publishes collection run status as a monotonic,
// stale-guarded stream. The run coordinator is the single writer; any number
// of observers read a consistent snapshot via polling or a push channel.
package progress

import (
	"context"
	"sync"

	"github.com/go-pkgz/lgr"

	"github.com/feedlens/feedlens/pkg/domain"
)

// Update is one published progress event. Counts and percent are
// non-decreasing for a given run id; a new run id resets everything to zero.
type Update struct {
	RunID           string                 `json:"run_id"`
	Status          domain.RunStatus       `json:"status"`
	ProgressPercent float64                `json:"progress_percent"`
	CurrentSource   string                 `json:"current_source,omitempty"`
	SourceCounts    map[string]int         `json:"per_source_counts"`
	Errors          []domain.SourceFailure `json:"errors,omitempty"`
}

// Broadcaster owns the mutable progress state under a single writer lock.
// Publish is called only by the run coordinator; Snapshot and Subscribe serve
// observers without ever exposing a torn read.
type Broadcaster struct {
	mu           sync.RWMutex
	state        Update
	terminalSent bool
	subs         map[chan Update]struct{}
	bufSize      int
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer
func NewBroadcaster(bufSize int) *Broadcaster {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Broadcaster{
		subs:    make(map[chan Update]struct{}),
		bufSize: bufSize,
	}
}

// Publish applies an update and fans it out. Regressive values are clamped to
// keep the per-run stream monotonic, and at most one terminal event is
// emitted per run id; anything after it is dropped.
func (b *Broadcaster) Publish(u Update) {
	b.mu.Lock()

	if u.RunID != b.state.RunID {
		// fresh run: reset to zero under the new id
		b.state = Update{RunID: u.RunID, SourceCounts: map[string]int{}}
		b.terminalSent = false
	}

	if b.terminalSent {
		b.mu.Unlock()
		return
	}

	if u.ProgressPercent < b.state.ProgressPercent {
		u.ProgressPercent = b.state.ProgressPercent
	}
	merged := make(map[string]int, len(u.SourceCounts))
	for src, cnt := range b.state.SourceCounts {
		merged[src] = cnt
	}
	for src, cnt := range u.SourceCounts {
		if cnt > merged[src] {
			merged[src] = cnt
		}
	}
	u.SourceCounts = merged

	b.state = u
	if u.Status.Terminal() {
		b.terminalSent = true
	}

	snapshot := b.state.clone()
	targets := make([]chan Update, 0, len(b.subs))
	for ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		b.send(ch, snapshot)
	}
}

// send delivers without blocking the publisher. A slow observer loses an
// intermediate update, never the terminal one: for terminal events the oldest
// buffered update is evicted to make room.
func (b *Broadcaster) send(ch chan Update, u Update) {
	select {
	case ch <- u:
		return
	default:
	}
	if !u.Status.Terminal() {
		lgr.Printf("[DEBUG] progress subscriber full, dropped update for run %s", u.RunID)
		return
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- u:
	default:
	}
}

// Snapshot returns a consistent copy of the current state
func (b *Broadcaster) Snapshot() Update {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.clone()
}

// Subscribe registers an observer channel, removed when ctx ends
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan Update {
	ch := make(chan Update, b.bufSize)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}()
	return ch
}

func (u Update) clone() Update {
	cp := u
	cp.SourceCounts = make(map[string]int, len(u.SourceCounts))
	for k, v := range u.SourceCounts {
		cp.SourceCounts[k] = v
	}
	cp.Errors = append([]domain.SourceFailure(nil), u.Errors...)
	return cp
}
