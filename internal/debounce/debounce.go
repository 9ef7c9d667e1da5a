// Package debounce coalesces bursts of triggers per key so only the latest
// one runs.
package debounce

import (
	"context"
	"sync"
	"time"
)

// DefaultDelay is the quiet period before a trigger runs.
const DefaultDelay = 300 * time.Millisecond

// Group holds one debouncer per key. A new Trigger for a key resets its
// timer and cancels the run in flight for that key.
type Group struct {
	delay  time.Duration
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*slot
	wg      sync.WaitGroup
}

type slot struct {
	timer  *time.Timer
	cancel context.CancelFunc
	seq    uint64
}

// New returns a Group; a delay of zero or less uses DefaultDelay.
func New(delay time.Duration) *Group {
	if delay <= 0 {
		delay = DefaultDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Group{
		delay:   delay,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*slot),
	}
}

// Trigger schedules fn for key after the delay, replacing any earlier
// trigger for the same key. fn's context is cancelled when a newer trigger
// arrives or the group stops.
func (g *Group) Trigger(key string, fn func(ctx context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx.Err() != nil {
		return
	}

	s, ok := g.pending[key]
	if !ok {
		s = &slot{}
		g.pending[key] = s
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	ctx, cancel := context.WithCancel(g.ctx)
	s.cancel = cancel

	s.timer = time.AfterFunc(g.delay, func() {
		g.mu.Lock()
		if cur, ok := g.pending[key]; !ok || cur.seq != seq || ctx.Err() != nil {
			g.mu.Unlock()
			return
		}
		g.wg.Add(1)
		g.mu.Unlock()

		defer g.wg.Done()
		defer g.finish(key, seq, cancel)
		fn(ctx)
	})
}

func (g *Group) finish(key string, seq uint64, cancel context.CancelFunc) {
	cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.pending[key]; ok && cur.seq == seq {
		delete(g.pending, key)
	}
}

// Pending returns the number of keys with a scheduled or running trigger.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Stop drops scheduled triggers, cancels running ones and waits for them.
func (g *Group) Stop() {
	g.mu.Lock()
	g.cancel()
	for key, s := range g.pending {
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
		delete(g.pending, key)
	}
	g.mu.Unlock()
	g.wg.Wait()
}
