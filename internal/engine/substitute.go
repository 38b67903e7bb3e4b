package engine

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cartsync/internal/domain/cart"
	"github.com/xenking/cartsync/internal/risk"
)

// The portal has no update-substitutes call: the only way to rewrite a
// line's substitute set is to delete the line and recreate it. That pair is
// treated here as the intended protocol contract, not hidden behind a
// pretend atomic update. The sequence below records the line's ordinal
// position, replaces it in place under a fresh temporary id, runs the
// remove+re-add against the portal, and repositions if the server reordered
// anything. Identity churns; position must not.

// SetSubstitute attaches an alternate product to a line at the given
// priority slot. An occupied slot is rejected with PriorityTakenError
// (distinct from MaxSubstitutesError so callers can tell "replace" from
// "full"). On success a risk assessment is triggered for the newcomer.
func (e *Engine) SetSubstitute(ctx context.Context, id cart.LineID, substituteCode string, priority int) error {
	return e.editSubstitutes(ctx, id, func(l cart.Line) ([]cart.Substitute, []string, error) {
		if priority != 1 && priority != 2 {
			return nil, nil, &cart.InvalidPriorityError{Priority: priority}
		}
		if _, taken := l.SubstituteAt(priority); taken {
			return nil, nil, &cart.PriorityTakenError{ID: l.ID, Priority: priority}
		}
		if len(l.Substitutes) >= cart.MaxSubstitutes {
			return nil, nil, &cart.MaxSubstitutesError{ID: l.ID}
		}
		if substituteCode == l.ProductCode || l.HasSubstitute(substituteCode) {
			return nil, nil, &cart.DuplicateSubstituteError{ID: l.ID, ProductCode: substituteCode}
		}

		next := make([]cart.Substitute, 0, len(l.Substitutes)+1)
		for _, s := range l.Substitutes {
			s.RiskScore = nil
			next = append(next, s)
		}
		next = append(next, cart.Substitute{ProductCode: substituteCode, Priority: priority})
		cart.SortSubstitutes(next)
		return next, []string{substituteCode}, nil
	})
}

// ClearSubstitute detaches the substitute occupying the given priority
// slot, via the same remove+re-add sequence.
func (e *Engine) ClearSubstitute(ctx context.Context, id cart.LineID, priority int) error {
	return e.editSubstitutes(ctx, id, func(l cart.Line) ([]cart.Substitute, []string, error) {
		if _, ok := l.SubstituteAt(priority); !ok {
			return nil, nil, &cart.SubstituteNotFoundError{ID: l.ID, Priority: priority}
		}
		next := make([]cart.Substitute, 0, len(l.Substitutes))
		for _, s := range l.Substitutes {
			if s.Priority != priority {
				s.RiskScore = nil
				next = append(next, s)
			}
		}
		return next, nil, nil
	})
}

// editSubstitutes runs one substitute-edit sequence: resolve the line,
// acquire the per-product in-flight flag, compute the new substitute set,
// then rewrite the line through the portal's remove+re-add pair under the
// usual snapshot/rollback discipline.
//
// Sequences are serialized per product code: a second edit while one is in
// flight fails fast with EditInProgressError rather than racing, since two
// interleaved remove+re-add pairs on the same line would lose an update.
// The flag is cleared exactly once on every exit path.
func (e *Engine) editSubstitutes(
	ctx context.Context,
	id cart.LineID,
	rewrite func(l cart.Line) (subs []cart.Substitute, assess []string, err error),
) error {
	line, index, ok := e.lineByID(id)
	if !ok {
		return &cart.LineNotFoundError{ID: id}
	}
	code := line.ProductCode

	if !e.beginEdit(code) {
		return &cart.EditInProgressError{ProductCode: code}
	}
	defer e.endEdit(code)

	newSubs, assessCodes, err := rewrite(line)
	if err != nil {
		return err
	}

	lg := zctx.From(ctx)
	replacement := line.Clone()
	replacement.ID = cart.TempLineID()
	replacement.Substitutes = newSubs

	tx := e.begin()
	tx.apply(func(lines []cart.Line) []cart.Line {
		for i := range lines {
			if lines[i].ProductCode == code {
				lines[i] = replacement
			}
		}
		return lines
	})

	// Intermediate acks are not merged: the cache must not observe the
	// half-done state between the two remote calls.
	if _, err := e.remote.RemoveFromCart(ctx, line.ID); err != nil {
		tx.abort()
		lg.Warn("Substitute edit rolled back on remove", zap.String("product", code), zap.Error(err))
		return errors.Wrap(err, "remove line")
	}

	resp, err := e.remote.AddToCart(ctx, code, line.Quantity, newSubs)
	if err != nil {
		tx.abort()
		lg.Warn("Substitute edit rolled back on re-add", zap.String("product", code), zap.Error(err))
		return errors.Wrap(err, "re-add line")
	}
	tx.commit(resp)

	// A full-cart ack may have appended the recreated line; put it back at
	// its recorded ordinal position.
	e.cache.Apply(func(lines []cart.Line) []cart.Line {
		return moveLineTo(lines, code, index)
	})

	if len(assessCodes) > 0 {
		items := make([]risk.Item, len(assessCodes))
		for i, c := range assessCodes {
			items[i] = risk.Item{ProductCode: c, Quantity: line.Quantity}
		}
		e.assess(ctx, items...)
	}
	return nil
}

// EditInProgress reports whether a substitute-edit sequence is currently in
// flight for the product. Dialog auto-close and rebinding logic must stay
// suppressed while this is true.
func (e *Engine) EditInProgress(productCode string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editing[productCode]
}

func (e *Engine) beginEdit(code string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.editing[code] {
		return false
	}
	e.editing[code] = true
	return true
}

func (e *Engine) endEdit(code string) {
	e.mu.Lock()
	delete(e.editing, code)
	e.mu.Unlock()
}

// moveLineTo relocates the line with the given product code to index,
// preserving the relative order of everything else.
func moveLineTo(lines []cart.Line, code string, index int) []cart.Line {
	from := -1
	for i := range lines {
		if lines[i].ProductCode == code {
			from = i
			break
		}
	}
	if from < 0 || from == index || index >= len(lines) {
		return lines
	}
	l := lines[from]
	lines = append(lines[:from], lines[from+1:]...)
	out := make([]cart.Line, 0, len(lines)+1)
	out = append(out, lines[:index]...)
	out = append(out, l)
	out = append(out, lines[index:]...)
	return out
}
