// Package floodguard rate-limits inbound messages per sender.
package floodguard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTTL     = 10 * time.Minute
	defaultCleanup = time.Minute
)

type sender struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	warned   bool
}

type Guard struct {
	mu      sync.Mutex
	senders map[int64]*sender
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// New allows each sender perSecond messages on average with bursts of
// burst. A non-positive perSecond disables limiting.
func New(perSecond float64, burst int) *Guard {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Guard{
		senders: make(map[int64]*sender),
		limit:   limit,
		burst:   burst,
		ttl:     defaultTTL,
		now:     time.Now,
	}
}

// Verdict is the outcome for one message.
type Verdict int

const (
	Allow Verdict = iota
	// Warn means the message is dropped and the sender should be told once.
	Warn
	// Drop means the message is dropped silently; the sender was already warned.
	Drop
)

func (g *Guard) Check(id int64) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	s, ok := g.senders[id]
	if !ok {
		s = &sender{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.senders[id] = s
	}
	s.lastSeen = now

	if s.limiter.AllowN(now, 1) {
		s.warned = false
		return Allow
	}
	if s.warned {
		return Drop
	}
	s.warned = true
	return Warn
}

// Evict forgets senders idle for longer than the ttl.
func (g *Guard) Evict() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for id, s := range g.senders {
		if now.Sub(s.lastSeen) > g.ttl {
			delete(g.senders, id)
			removed++
		}
	}
	return removed
}

// Run evicts idle senders every minute until ctx is done.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Evict()
		}
	}
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.senders)
}
