package buyback

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/pricing"
)

// SetItemAssessment ranks and prices one item. The buyback table price for
// the rank is stored as the suggestion; a unitPrice of 0 adopts it.
func (s *Service) SetItemAssessment(ctx context.Context, number core.ApplicationNumber, itemID core.ItemID, rank core.Rank, unitPrice core.Money) (core.BuybackApplication, error) {
	v := &core.ValidationError{}
	if !rank.Valid() {
		v.Add("rank", "unknown rank %q", rank)
	}
	if unitPrice.IsNegative() {
		v.Add("unitPrice", "must not be negative")
	}
	if err := v.OrNil(); err != nil {
		return core.BuybackApplication{}, err
	}

	return s.mutate(ctx, number, func(ctx context.Context, tx core.Store, app *core.BuybackApplication, _ *events.Buffer) error {
		if app.Status != core.BuybackAssessing {
			return invalid(app, "set item assessment")
		}
		item := app.Item(itemID)
		if item == nil {
			return core.NotFound("buyback item", itemID)
		}
		product, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			return fmt.Errorf("load product %s: %w", item.ProductID, err)
		}

		res, err := s.pricing.With(tx).ComputePrice(ctx, pricing.Query{
			Direction:      core.PriceBuyback,
			ProductCode:    product.Code,
			Rank:           rank,
			CounterpartyID: app.CustomerID,
		})
		if err != nil {
			return err
		}

		item.Rank = rank
		item.SuggestedPrice = res.FinalPrice
		item.UnitPrice = unitPrice
		if unitPrice == 0 {
			item.UnitPrice = res.FinalPrice
		}

		s.logger.Info("buyback item assessed",
			zap.String("application", string(app.Number)),
			zap.String("item", string(item.ID)),
			zap.String("rank", string(rank)),
			zap.Int64("unit_price", int64(item.UnitPrice)),
			zap.Int64("suggested", int64(item.SuggestedPrice)),
		)
		return nil
	})
}

// SetConditionNotes records the assessor's notes on one item. Rank C items
// can't be confirmed without them.
func (s *Service) SetConditionNotes(ctx context.Context, number core.ApplicationNumber, itemID core.ItemID, notes string) (core.BuybackApplication, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, app *core.BuybackApplication, _ *events.Buffer) error {
		if app.Status != core.BuybackAssessing {
			return invalid(app, "set condition notes")
		}
		item := app.Item(itemID)
		if item == nil {
			return core.NotFound("buyback item", itemID)
		}
		item.ConditionNotes = strings.TrimSpace(notes)
		return nil
	})
}

// Payable is Σ unit price × quantity plus the self-ship bonus when it applies.
func (s *Service) Payable(app core.BuybackApplication) core.Money {
	var total core.Money
	for _, it := range app.Items {
		total += it.UnitPrice.Mul(it.Quantity)
	}
	if app.ShippingMethod == core.ShippingSelfShip {
		total += s.bonus
	}
	return total
}

// ConfirmAssessment closes the assessment. Every item needs a rank and a
// positive price, rank C items need condition notes, and the assessor must
// be named; otherwise the IncompleteAssessmentError lists what is missing. Auto-approval
// applications skip the manual decision.
func (s *Service) ConfirmAssessment(ctx context.Context, number core.ApplicationNumber, assessor string) (core.BuybackApplication, error) {
	assessor = strings.TrimSpace(assessor)

	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, app *core.BuybackApplication, _ *events.Buffer) error {
		if app.Status != core.BuybackAssessing {
			return invalid(app, "confirm assessment")
		}

		incomplete := &core.IncompleteAssessmentError{MissingAssessor: assessor == ""}
		for _, it := range app.Items {
			if !it.Rank.Valid() {
				incomplete.UnrankedItems = append(incomplete.UnrankedItems, it.ID)
			}
			if !it.UnitPrice.IsPositive() {
				incomplete.UnpricedItems = append(incomplete.UnpricedItems, it.ID)
			}
			if it.Rank == core.RankC && strings.TrimSpace(it.ConditionNotes) == "" {
				incomplete.UnnotedItems = append(incomplete.UnnotedItems, it.ID)
			}
		}
		if incomplete.MissingAssessor || len(incomplete.UnrankedItems) > 0 ||
			len(incomplete.UnpricedItems) > 0 || len(incomplete.UnnotedItems) > 0 {
			return incomplete
		}

		now := s.clock.Now()
		target := core.BuybackAwaitingApproval
		if app.ApprovalMethod == core.ApprovalAuto {
			target = core.BuybackAutoApproved
			app.DecidedAt = &now
		}
		if err := transition(app, "confirm assessment", target, core.BuybackAssessing); err != nil {
			return err
		}
		app.Assessor = assessor
		app.TotalPayable = s.Payable(*app)
		app.AssessedAt = &now
		return nil
	})
}

// Approve accepts the customer's agreement to the assessed total.
func (s *Service) Approve(ctx context.Context, number core.ApplicationNumber) (core.BuybackApplication, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, app *core.BuybackApplication, _ *events.Buffer) error {
		if err := transition(app, "approve", core.BuybackApproved, core.BuybackAwaitingApproval); err != nil {
			return err
		}
		now := s.clock.Now()
		app.DecidedAt = &now
		return nil
	})
}

// Reject closes the application without intake.
func (s *Service) Reject(ctx context.Context, number core.ApplicationNumber, reason string) (core.BuybackApplication, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, app *core.BuybackApplication, _ *events.Buffer) error {
		if err := transition(app, "reject", core.BuybackRejected, core.BuybackAwaitingApproval); err != nil {
			return err
		}
		now := s.clock.Now()
		app.DecidedAt = &now
		app.RejectReason = strings.TrimSpace(reason)
		return nil
	})
}
