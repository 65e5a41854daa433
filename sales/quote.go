package sales

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/inventory"
	"github.com/warp/console-buyback/pricing"
)

// =============================================================================
// AUTO QUOTE
// =============================================================================

// ResolveRank picks the rank to quote from active stock per rank: the best
// rank that covers qty, else the best rank with any stock, else fallback
// (or A when fallback is unset).
func ResolveRank(stock map[core.Rank]int, qty int, fallback core.Rank) core.Rank {
	for _, r := range core.AllRanks {
		if stock[r] >= qty && stock[r] > 0 {
			return r
		}
	}
	for _, r := range core.AllRanks {
		if stock[r] > 0 {
			return r
		}
	}
	if fallback.Valid() {
		return fallback
	}
	return core.RankA
}

// AutoQuote resolves rank and table price for every item without a manual
// override. A zero FinalPrice is kept with its reason in PriceNote so the
// gap is visible on the quote.
func (s *Service) AutoQuote(ctx context.Context, number core.RequestNumber) (core.SalesRequest, error) {
	return s.mutate(ctx, number, func(ctx context.Context, tx core.Store, req *core.SalesRequest, buf *events.Buffer) error {
		if req.Status != core.SalesPending {
			return invalid(req, "auto quote")
		}

		ledger := s.ledger.In(tx, buf)
		engine := s.pricing.With(tx)
		now := s.clock.Now()

		for i := range req.Items {
			item := &req.Items[i]
			if item.ManualOverride {
				continue
			}

			lots, err := ledger.Query(ctx, inventory.Filter{ProductID: item.ProductID})
			if err != nil {
				return err
			}
			stock := make(map[core.Rank]int)
			for _, lot := range lots {
				stock[lot.Rank] += lot.Quantity
			}
			rank := ResolveRank(stock, item.Quantity, item.Rank)

			res, err := engine.ComputePrice(ctx, pricing.Query{
				Direction:      core.PriceResale,
				ProductCode:    item.ProductCode,
				Rank:           rank,
				CounterpartyID: req.CounterpartyID,
			})
			if err != nil {
				return err
			}

			item.Rank = rank
			item.BasePrice = res.BasePrice
			item.UnitPrice = res.FinalPrice
			item.PriceSource = core.PriceFromTable
			item.PriceNote = res.Reason
			item.PricedAt = &now
		}

		s.logger.Info("sales request auto-quoted",
			zap.String("request", string(req.Number)),
			zap.Int("items", len(req.Items)),
		)
		return nil
	})
}

// ManualPrice is a staff-entered price for one item.
type ManualPrice struct {
	Rank  core.Rank // optional, keeps the current rank when empty
	Price core.Money
	Note  string
	Staff string
}

// SetItemPrice overrides an item's price while the request is pending.
// AutoQuote leaves overridden items alone.
func (s *Service) SetItemPrice(ctx context.Context, number core.RequestNumber, itemID core.ItemID, mp ManualPrice) (core.SalesRequest, error) {
	v := &core.ValidationError{}
	if !mp.Price.IsPositive() {
		v.Add("price", "must be greater than 0")
	}
	if mp.Rank != "" && !mp.Rank.Valid() {
		v.Add("rank", "unknown rank %q", mp.Rank)
	}
	if strings.TrimSpace(mp.Staff) == "" {
		v.Add("staff", "required")
	}
	if err := v.OrNil(); err != nil {
		return core.SalesRequest{}, err
	}

	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, req *core.SalesRequest, _ *events.Buffer) error {
		if req.Status != core.SalesPending {
			return invalid(req, "set item price")
		}
		item := req.Item(itemID)
		if item == nil {
			return core.NotFound("sales item", itemID)
		}
		if mp.Rank != "" {
			item.Rank = mp.Rank
		}
		now := s.clock.Now()
		item.UnitPrice = mp.Price
		item.PriceSource = core.PriceFromManual
		item.ManualOverride = true
		item.PriceNote = mp.Note
		item.PricedAt = &now

		s.logger.Info("sales item priced manually",
			zap.String("request", string(req.Number)),
			zap.String("item", string(item.ID)),
			zap.Int64("price", int64(mp.Price)),
			zap.String("staff", mp.Staff),
		)
		return nil
	})
}

// ClearItemPrice drops a manual override so the next AutoQuote prices the
// item from the table again.
func (s *Service) ClearItemPrice(ctx context.Context, number core.RequestNumber, itemID core.ItemID) (core.SalesRequest, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, req *core.SalesRequest, _ *events.Buffer) error {
		if req.Status != core.SalesPending {
			return invalid(req, "clear item price")
		}
		item := req.Item(itemID)
		if item == nil {
			return core.NotFound("sales item", itemID)
		}
		item.ManualOverride = false
		return nil
	})
}

// =============================================================================
// QUOTE CONFIRMATION & DECISION
// =============================================================================

type QuoteInput struct {
	ShippingFee      core.Money
	DeliveryEstimate string
	StaffID          string
}

// ConfirmQuote fixes the quote. The ValidationError lists every unmet
// requirement at once.
func (s *Service) ConfirmQuote(ctx context.Context, number core.RequestNumber, in QuoteInput) (core.SalesRequest, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, req *core.SalesRequest, _ *events.Buffer) error {
		if req.Status != core.SalesPending {
			return invalid(req, "confirm quote")
		}

		v := &core.ValidationError{}
		for i, it := range req.Items {
			if !it.UnitPrice.IsPositive() {
				v.Add(fmt.Sprintf("items[%d].unitPrice", i), "item %s has no price", it.ID)
			}
			if !it.Rank.Valid() {
				v.Add(fmt.Sprintf("items[%d].rank", i), "item %s has no rank", it.ID)
			}
		}
		if !in.ShippingFee.IsPositive() {
			v.Add("shippingFee", "must be greater than 0")
		}
		if strings.TrimSpace(in.DeliveryEstimate) == "" {
			v.Add("deliveryEstimate", "required")
		}
		if strings.TrimSpace(in.StaffID) == "" {
			v.Add("staffId", "required")
		}
		if err := v.OrNil(); err != nil {
			return err
		}

		if err := transition(req, "confirm quote", core.SalesQuoted, core.SalesPending); err != nil {
			return err
		}
		now := s.clock.Now()
		req.ShippingFee = in.ShippingFee
		req.DeliveryEstimate = strings.TrimSpace(in.DeliveryEstimate)
		req.QuotedBy = strings.TrimSpace(in.StaffID)
		req.QuotedAt = &now
		return nil
	})
}

// Approve records the buyer's acceptance of the quote.
func (s *Service) Approve(ctx context.Context, number core.RequestNumber) (core.SalesRequest, error) {
	return s.decide(ctx, number, "approve", core.SalesApproved)
}

// Decline records the buyer's refusal of the quote.
func (s *Service) Decline(ctx context.Context, number core.RequestNumber) (core.SalesRequest, error) {
	return s.decide(ctx, number, "decline", core.SalesDeclined)
}

func (s *Service) decide(ctx context.Context, number core.RequestNumber, action string, target core.SalesStatus) (core.SalesRequest, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, req *core.SalesRequest, _ *events.Buffer) error {
		if err := transition(req, action, target, core.SalesQuoted); err != nil {
			return err
		}
		now := s.clock.Now()
		req.DecidedAt = &now
		return nil
	})
}

// ConfirmPayment records receipt of the buyer's payment.
func (s *Service) ConfirmPayment(ctx context.Context, number core.RequestNumber) (core.SalesRequest, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, req *core.SalesRequest, _ *events.Buffer) error {
		if err := transition(req, "confirm payment", core.SalesPaymentConfirmed, core.SalesApproved); err != nil {
			return err
		}
		now := s.clock.Now()
		req.PaidAt = &now
		return nil
	})
}
