// Package engine orchestrates every cart-affecting user action as an
// optimistic-apply, remote-call, reconcile-or-rollback transaction against
// the local cart cache.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cartsync/internal/cache"
	"github.com/xenking/cartsync/internal/domain/cart"
	"github.com/xenking/cartsync/internal/domain/product"
	"github.com/xenking/cartsync/internal/risk"
)

// CartService is the remote authoritative cart store contract.
// Acknowledgments are not guaranteed complete or consistent in shape with
// the local cache; see cart.ServerResponse.
type CartService interface {
	AddToCart(ctx context.Context, productCode string, quantity int, subs []cart.Substitute) (*cart.ServerResponse, error)
	RemoveFromCart(ctx context.Context, id cart.LineID) (*cart.ServerResponse, error)
	UpdateQuantity(ctx context.Context, id cart.LineID, quantity int) (*cart.ServerResponse, error)
	ClearCart(ctx context.Context) error
	FetchCart(ctx context.Context) ([]cart.Line, error)
	PlaceOrder(ctx context.Context, req cart.OrderRequest) (string, error)
}

// RiskTrigger schedules shortage risk assessments as a non-blocking side
// channel. Implementations must return immediately.
type RiskTrigger interface {
	SetDeliveryDate(ctx context.Context, date time.Time, items ...risk.Item)
	Assess(ctx context.Context, items ...risk.Item)
}

// Engine owns the local cart cache and exposes one transaction per
// user-facing action. The cache is never left in a state the server has
// contradicted: every failed remote call restores the pre-transaction
// snapshot before the error is surfaced.
type Engine struct {
	cache  *cache.Cache
	remote CartService
	risk   RiskTrigger
	now    func() time.Time

	mu      sync.Mutex
	editing map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock used for order-date validation.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRiskTrigger attaches a shortage risk scheduler. Without one, risk
// side effects are skipped.
func WithRiskTrigger(rt RiskTrigger) Option {
	return func(e *Engine) { e.risk = rt }
}

// New creates an Engine that owns the given cache exclusively.
func New(c *cache.Cache, remote CartService, opts ...Option) *Engine {
	e := &Engine{
		cache:   c,
		remote:  remote,
		now:     time.Now,
		editing: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache exposes the engine's cache for read-only observers.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Refresh hydrates the cache from the remote cart. Used at session start;
// the remote view replaces the local one wholesale.
func (e *Engine) Refresh(ctx context.Context) error {
	lines, err := e.remote.FetchCart(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch cart")
	}
	e.cache.Apply(func([]cart.Line) []cart.Line {
		return lines
	})
	return nil
}

// AddItem adds a product to the cart. If a line for the product already
// exists, this becomes a quantity increment on that line instead of a
// duplicate; otherwise a new line is appended under a temporary id until
// the server assigns one. Substitutes are validated against the line
// invariants before any network call.
func (e *Engine) AddItem(ctx context.Context, p product.Product, quantity int, subs []cart.Substitute) error {
	if quantity < 1 {
		return &cart.InvalidQuantityError{Quantity: quantity}
	}
	if err := cart.ValidateSubstitutes(p.Code, subs); err != nil {
		return err
	}

	if existing, _, ok := e.lineByProduct(p.Code); ok {
		return e.UpdateQuantity(ctx, existing.ID, existing.Quantity+quantity)
	}

	lg := zctx.From(ctx)
	line := cart.Line{
		ID:          cart.TempLineID(),
		ProductCode: p.Code,
		Quantity:    quantity,
		Substitutes: append([]cart.Substitute(nil), subs...),
		Product:     &p,
	}
	cart.SortSubstitutes(line.Substitutes)

	tx := e.begin()
	tx.apply(func(lines []cart.Line) []cart.Line {
		return append(lines, line)
	})

	resp, err := e.remote.AddToCart(ctx, p.Code, quantity, line.Substitutes)
	if err != nil {
		tx.abort()
		lg.Warn("Add item rolled back", zap.String("product", p.Code), zap.Error(err))
		return errors.Wrap(err, "add to cart")
	}
	tx.commit(resp)
	lg.Debug("Item added", zap.String("product", p.Code), zap.Int("quantity", quantity))

	items := make([]risk.Item, 0, 1+len(line.Substitutes))
	items = append(items, risk.Item{ProductCode: p.Code, Quantity: quantity})
	for _, s := range line.Substitutes {
		items = append(items, risk.Item{ProductCode: s.ProductCode, Quantity: quantity})
	}
	e.assess(ctx, items...)
	return nil
}

// RemoveItem removes a line from the cart. On failure the line reappears at
// its original position, guaranteed by the snapshot restore.
func (e *Engine) RemoveItem(ctx context.Context, id cart.LineID) error {
	if _, _, ok := e.lineByID(id); !ok {
		return &cart.LineNotFoundError{ID: id}
	}

	tx := e.begin()
	tx.apply(func(lines []cart.Line) []cart.Line {
		out := lines[:0]
		for _, l := range lines {
			if l.ID != id {
				out = append(out, l)
			}
		}
		return out
	})

	resp, err := e.remote.RemoveFromCart(ctx, id)
	if err != nil {
		tx.abort()
		zctx.From(ctx).Warn("Remove item rolled back", zap.String("line", string(id)), zap.Error(err))
		return errors.Wrap(err, "remove from cart")
	}
	tx.commit(resp)
	return nil
}

// UpdateQuantity sets a line's quantity. A non-positive quantity is a
// caller contract violation, surfaced without clamping. On success a risk
// re-assessment is triggered for the line's product at the new quantity;
// that side effect is outside the transaction's atomicity.
func (e *Engine) UpdateQuantity(ctx context.Context, id cart.LineID, quantity int) error {
	if quantity < 1 {
		return &cart.InvalidQuantityError{Quantity: quantity}
	}
	line, _, ok := e.lineByID(id)
	if !ok {
		return &cart.LineNotFoundError{ID: id}
	}

	tx := e.begin()
	tx.apply(func(lines []cart.Line) []cart.Line {
		for i := range lines {
			if lines[i].ID == id {
				lines[i].Quantity = quantity
			}
		}
		return lines
	})

	resp, err := e.remote.UpdateQuantity(ctx, id, quantity)
	if err != nil {
		tx.abort()
		zctx.From(ctx).Warn("Quantity update rolled back", zap.String("line", string(id)), zap.Error(err))
		return errors.Wrap(err, "update quantity")
	}
	tx.commit(resp)

	e.assess(ctx, risk.Item{ProductCode: line.ProductCode, Quantity: quantity})
	return nil
}

// SetDeliveryDate records the session delivery date and triggers a batched
// re-assessment of every line and substitute currently in the cart.
func (e *Engine) SetDeliveryDate(ctx context.Context, date time.Time) {
	if e.risk == nil {
		return
	}
	var items []risk.Item
	for _, l := range e.cache.Lines() {
		items = append(items, risk.Item{ProductCode: l.ProductCode, Quantity: l.Quantity})
		for _, s := range l.Substitutes {
			items = append(items, risk.Item{ProductCode: s.ProductCode, Quantity: l.Quantity})
		}
	}
	e.risk.SetDeliveryDate(context.WithoutCancel(ctx), date, items...)
}

// PlaceOrder places an order from the current cart. Preconditions (cart
// non-empty, delivery date strictly after today's calendar day, window
// start before end when both bounds are given) are checked before any
// network call. On success the cache is cleared optimistically and the
// remote cart cleared best-effort: a failed remote clear is logged and
// swallowed because the order is already durably placed.
func (e *Engine) PlaceOrder(ctx context.Context, req cart.OrderRequest) (string, error) {
	if e.cache.Len() == 0 {
		return "", cart.ErrEmptyCart
	}
	if err := e.validateOrderSchedule(req); err != nil {
		return "", err
	}

	lg := zctx.From(ctx)
	orderID, err := e.remote.PlaceOrder(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "place order")
	}

	e.cache.Apply(func([]cart.Line) []cart.Line {
		return nil
	})
	if err := e.remote.ClearCart(ctx); err != nil {
		lg.Error("Remote cart clear failed after order placement", zap.String("order", orderID), zap.Error(err))
	}

	lg.Debug("Order placed", zap.String("order", orderID))
	return orderID, nil
}

func (e *Engine) validateOrderSchedule(req cart.OrderRequest) error {
	today := e.now()
	ty, tm, td := today.Date()
	dy, dm, dd := req.DeliveryDate.Date()
	if dy < ty || (dy == ty && (dm < tm || (dm == tm && dd <= td))) {
		return &cart.DeliveryDateError{Date: req.DeliveryDate}
	}

	start, err := parseWindow(req.WindowStart)
	if err != nil {
		return &cart.DeliveryWindowError{Start: req.WindowStart, End: req.WindowEnd}
	}
	end, err := parseWindow(req.WindowEnd)
	if err != nil {
		return &cart.DeliveryWindowError{Start: req.WindowStart, End: req.WindowEnd}
	}
	if req.WindowStart != "" && req.WindowEnd != "" && !start.Before(end) {
		return &cart.DeliveryWindowError{Start: req.WindowStart, End: req.WindowEnd}
	}
	return nil
}

func parseWindow(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse("15:04", v)
}

// assess forwards risk items to the scheduler, detached from the
// transaction's context lifetime.
func (e *Engine) assess(ctx context.Context, items ...risk.Item) {
	if e.risk == nil || len(items) == 0 {
		return
	}
	e.risk.Assess(context.WithoutCancel(ctx), items...)
}

func (e *Engine) lineByID(id cart.LineID) (cart.Line, int, bool) {
	for i, l := range e.cache.Lines() {
		if l.ID == id {
			return l, i, true
		}
	}
	return cart.Line{}, -1, false
}

func (e *Engine) lineByProduct(code string) (cart.Line, int, bool) {
	for i, l := range e.cache.Lines() {
		if l.ProductCode == code {
			return l, i, true
		}
	}
	return cart.Line{}, -1, false
}

// LineByProduct resolves a line by its stable product code. UI surfaces
// editing substitutes must resolve lines this way, not by line id: the id
// churns mid-sequence while a substitute edit is in flight.
func (e *Engine) LineByProduct(code string) (cart.Line, bool) {
	l, _, ok := e.lineByProduct(code)
	return l, ok
}
