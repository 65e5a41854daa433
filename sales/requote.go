package sales

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
)

// Requoter keeps pending quotes in step with the price tables. Attach it to
// the bus; every resale base price or adjustment change re-runs AutoQuote on
// the pending requests it touches. Manual overrides survive.
type Requoter struct {
	sales  *Service
	logger *zap.Logger
}

func NewRequoter(s *Service) *Requoter {
	return &Requoter{sales: s, logger: s.logger.Named("requote")}
}

// Attach subscribes the requoter to pricing events.
func (r *Requoter) Attach(bus *events.Bus) {
	bus.Subscribe("sales.requote", r.Handle,
		events.PricingBasePriceChanged,
		events.PricingAdjustmentChanged,
	)
}

// Handle re-quotes every pending request affected by e. Failures are
// collected so one stale request doesn't block the others.
func (r *Requoter) Handle(ctx context.Context, e events.Event) error {
	if e.Type == events.PricingBasePriceChanged && e.Direction != core.PriceResale {
		return nil
	}

	pending, err := r.sales.List(ctx, core.SalesFilter{Status: core.SalesPending})
	if err != nil {
		return err
	}

	var errs []error
	refreshed := 0
	for _, req := range pending {
		if !affected(req, e) {
			continue
		}
		if _, err := r.sales.AutoQuote(ctx, req.Number); err != nil {
			errs = append(errs, fmt.Errorf("requote %s: %w", req.Number, err))
			continue
		}
		refreshed++
	}

	r.logger.Debug("pending quotes refreshed",
		zap.String("event", string(e.Type)),
		zap.Int("refreshed", refreshed),
		zap.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

func affected(req core.SalesRequest, e events.Event) bool {
	if e.Type == events.PricingAdjustmentChanged && req.CounterpartyID != e.CounterpartyID {
		return false
	}
	for _, it := range req.Items {
		if e.Affects(it.ProductCode) {
			return true
		}
	}
	return false
}
