// Package cache holds the locally believed-true cart state and the
// snapshot/restore machinery backing optimistic transactions.
package cache

import (
	"sync"

	"go.uber.org/zap"

	"github.com/xenking/cartsync/internal/domain/cart"
)

// Snapshot is an opaque copy of the cache state, taken at transaction begin
// and used as the undo point on remote failure.
type Snapshot struct {
	lines []cart.Line
}

// Lines exposes the snapshotted lines as a deep copy.
func (s Snapshot) Lines() []cart.Line {
	return cart.CloneLines(s.lines)
}

// Cache is the in-memory mirror of the remote cart: the single source of
// truth for rendering. It is owned exclusively by the synchronization
// engine; all other readers treat it as read-only and re-render on change
// notification.
type Cache struct {
	lg *zap.Logger

	mu        sync.Mutex
	lines     []cart.Line
	listeners []func()
}

// New creates an empty cache. The cache has an explicit lifetime: one per
// portal session, discarded on session end.
func New(lg *zap.Logger) *Cache {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Cache{lg: lg}
}

// Subscribe registers a change listener, invoked after every installed
// state change. Listeners must not mutate the cache.
func (c *Cache) Subscribe(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Lines returns a deep copy of the current cart lines.
func (c *Cache) Lines() []cart.Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cart.CloneLines(c.lines)
}

// Len returns the number of lines currently in the cart.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Snapshot returns an undo point for the current state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{lines: cart.CloneLines(c.lines)}
}

// Restore replaces the current state wholesale with the snapshot. Used on
// transaction failure; no partial optimistic state survives.
func (c *Cache) Restore(s Snapshot) {
	c.mu.Lock()
	c.lines = cart.CloneLines(s.lines)
	c.mu.Unlock()
	c.notify()
}

// Apply runs a pure transform over the current lines and installs the
// result. The transform receives a deep copy and may return it mutated.
func (c *Cache) Apply(fn func(lines []cart.Line) []cart.Line) {
	c.mu.Lock()
	c.lines = fn(cart.CloneLines(c.lines))
	c.mu.Unlock()
	c.notify()
}

// MergeServerResponse reconciles an authoritative server acknowledgment
// into the cache.
//
// Full item list: the server's lines are adopted wholesale, each enriched
// with the product snapshot and risk score from the prior snapshot (matched
// by product code, falling back to position) since the server is not
// required to include display fields.
//
// Single-line acknowledgment: only the matching line's temporary identifier
// is patched, everything else stays at the optimistic value.
//
// Anything else is a partial-response ambiguity: the optimistic state is
// kept, because an odd acknowledgment is not evidence the mutation failed.
func (c *Cache) MergeServerResponse(resp *cart.ServerResponse, prior Snapshot) {
	if resp == nil {
		return
	}
	switch {
	case resp.Full:
		c.mergeFull(resp.Lines, prior)
	case resp.Line != nil:
		c.mergeLine(*resp.Line)
	default:
		c.lg.Debug("ambiguous server ack, keeping optimistic state")
	}
}

func (c *Cache) mergeFull(serverLines []cart.Line, prior Snapshot) {
	c.mu.Lock()
	merged := cart.CloneLines(serverLines)
	for i := range merged {
		p, ok := prior.byProductCode(merged[i].ProductCode)
		if !ok {
			p, ok = prior.at(i)
		}
		if !ok {
			continue
		}
		if merged[i].Product == nil {
			merged[i].Product = p.Product
		}
		if merged[i].RiskScore == nil {
			merged[i].RiskScore = p.RiskScore
		}
	}
	c.lines = merged
	c.mu.Unlock()
	c.notify()
}

func (c *Cache) mergeLine(ack cart.Line) {
	c.mu.Lock()
	for i := range c.lines {
		if c.lines[i].ProductCode != ack.ProductCode {
			continue
		}
		if c.lines[i].ID.Temporary() && ack.ID != "" {
			c.lines[i].ID = ack.ID
		}
		if ack.Quantity > 0 {
			c.lines[i].Quantity = ack.Quantity
		}
		if ack.RiskScore != nil {
			v := *ack.RiskScore
			c.lines[i].RiskScore = &v
		}
		if ack.Product != nil && c.lines[i].Product == nil {
			p := *ack.Product
			c.lines[i].Product = &p
		}
		break
	}
	c.mu.Unlock()
	c.notify()
}

// ApplyRisk merges shortage probabilities keyed by product code into every
// line and substitute slot showing that code. Idempotent: applying the same
// scores twice leaves the cache unchanged.
func (c *Cache) ApplyRisk(scores map[string]float64) {
	if len(scores) == 0 {
		return
	}
	c.mu.Lock()
	for i := range c.lines {
		if v, ok := scores[c.lines[i].ProductCode]; ok {
			score := v
			c.lines[i].RiskScore = &score
		}
		for j := range c.lines[i].Substitutes {
			if v, ok := scores[c.lines[i].Substitutes[j].ProductCode]; ok {
				score := v
				c.lines[i].Substitutes[j].RiskScore = &score
			}
		}
	}
	c.mu.Unlock()
	c.notify()
}

// notify invokes listeners outside the lock so they can read the cache.
func (c *Cache) notify() {
	c.mu.Lock()
	listeners := make([]func(), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (s Snapshot) byProductCode(code string) (cart.Line, bool) {
	for _, l := range s.lines {
		if l.ProductCode == code {
			return l, true
		}
	}
	return cart.Line{}, false
}

func (s Snapshot) at(i int) (cart.Line, bool) {
	if i < 0 || i >= len(s.lines) {
		return cart.Line{}, false
	}
	return s.lines[i], true
}
