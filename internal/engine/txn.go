package engine

import (
	"github.com/xenking/cartsync/internal/cache"
	"github.com/xenking/cartsync/internal/domain/cart"
)

// txnState tracks the lifecycle of one optimistic transaction.
type txnState uint8

const (
	txnIdle txnState = iota
	txnApplied
	txnCommitted
	txnAborted
)

func (s txnState) String() string {
	switch s {
	case txnIdle:
		return "idle"
	case txnApplied:
		return "applied"
	case txnCommitted:
		return "committed"
	case txnAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// txn is one optimistic cart transaction: snapshot at begin, synchronous
// optimistic apply, then exactly one of commit (merge the server response)
// or abort (restore the snapshot). Driving a txn out of order is a
// programmer error and panics.
type txn struct {
	cache *cache.Cache
	prior cache.Snapshot
	state txnState
}

func (e *Engine) begin() *txn {
	return &txn{
		cache: e.cache,
		prior: e.cache.Snapshot(),
		state: txnIdle,
	}
}

// apply installs the optimistic state. The UI observes it immediately.
func (t *txn) apply(fn func(lines []cart.Line) []cart.Line) {
	if t.state != txnIdle {
		panic("txn: apply in state " + t.state.String())
	}
	t.cache.Apply(fn)
	t.state = txnApplied
}

// commit merges the authoritative server response over the optimistic state.
func (t *txn) commit(resp *cart.ServerResponse) {
	if t.state != txnApplied {
		panic("txn: commit in state " + t.state.String())
	}
	t.cache.MergeServerResponse(resp, t.prior)
	t.state = txnCommitted
}

// abort restores the pre-transaction snapshot unconditionally.
func (t *txn) abort() {
	if t.state != txnApplied {
		panic("txn: abort in state " + t.state.String())
	}
	t.cache.Restore(t.prior)
	t.state = txnAborted
}
