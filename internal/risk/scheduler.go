// Package risk keeps shortage risk estimates fresh without redundant calls.
//
// Assessments are fire-and-forget idempotent reads: overlapping requests
// for the same product are allowed to race, and the cache stores whichever
// result lands last. A stale risk number is a soft-display concern, not a
// correctness concern, so no ordering token is carried.
package risk

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cartsync/internal/domain/cart"
)

// Item is one product/quantity pair to assess.
type Item struct {
	ProductCode string
	Quantity    int
}

// Assessor is the shortage risk service contract.
type Assessor interface {
	AssessRisk(ctx context.Context, reqs []cart.RiskRequest) ([]cart.RiskResult, error)
}

// Sink receives assessment results, keyed by product code.
type Sink interface {
	ApplyRisk(scores map[string]float64)
}

const defaultBatchSize = 25

// Scheduler batches and dispatches risk assessments triggered by cart
// activity. Triggers collapse into a single request per distinct product
// code set per event; oversized batches are chunked and fanned out.
type Scheduler struct {
	assessor  Assessor
	sink      Sink
	now       func() time.Time
	batchSize int

	mu           sync.Mutex
	deliveryDate time.Time

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the order-date clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithBatchSize caps the number of products per risk service request.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New creates a Scheduler. Assessments run only once a delivery date is
// known; triggers fired before SetDeliveryDate are skipped.
func New(assessor Assessor, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		assessor:  assessor,
		sink:      sink,
		now:       time.Now,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDeliveryDate records the session delivery date and re-assesses every
// given item against it in one batched trigger.
func (s *Scheduler) SetDeliveryDate(ctx context.Context, date time.Time, items ...Item) {
	s.mu.Lock()
	s.deliveryDate = date
	s.mu.Unlock()
	s.Assess(ctx, items...)
}

// Assess schedules a shortage assessment for the given items. Duplicate
// product codes within one trigger collapse into a single request entry.
// The call returns immediately; results are merged into the sink when they
// land and failures are logged, never propagated.
func (s *Scheduler) Assess(ctx context.Context, items ...Item) {
	s.mu.Lock()
	date := s.deliveryDate
	s.mu.Unlock()

	lg := zctx.From(ctx)
	if date.IsZero() {
		lg.Debug("No delivery date set, skipping risk assessment", zap.Int("items", len(items)))
		return
	}

	orderDate := s.now()
	seen := make(map[string]bool, len(items))
	reqs := make([]cart.RiskRequest, 0, len(items))
	for _, it := range items {
		if it.ProductCode == "" || it.Quantity < 1 || seen[it.ProductCode] {
			continue
		}
		seen[it.ProductCode] = true
		reqs = append(reqs, cart.RiskRequest{
			ProductCode:  it.ProductCode,
			Quantity:     it.Quantity,
			OrderDate:    orderDate,
			DeliveryDate: date,
		})
	}
	if len(reqs) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(ctx, reqs)
	}()
}

// dispatch fans the request set out in batchSize chunks. Each chunk merges
// its own results as it completes; last write wins across chunks.
func (s *Scheduler) dispatch(ctx context.Context, reqs []cart.RiskRequest) {
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(reqs); start += s.batchSize {
		end := min(start+s.batchSize, len(reqs))
		chunk := reqs[start:end]
		g.Go(func() error {
			results, err := s.assessor.AssessRisk(ctx, chunk)
			if err != nil {
				return err
			}
			scores := make(map[string]float64, len(results))
			for _, r := range results {
				scores[r.ProductCode] = r.ShortageProbability
			}
			s.sink.ApplyRisk(scores)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		zctx.From(ctx).Warn("Risk assessment failed", zap.Error(err), zap.Int("products", len(reqs)))
	}
}

// Close waits for in-flight assessments to finish.
func (s *Scheduler) Close() {
	s.wg.Wait()
}
