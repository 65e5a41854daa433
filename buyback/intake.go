package buyback

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/identifier"
	"github.com/warp/console-buyback/inventory"
)

// =============================================================================
// SHIPPING
// =============================================================================

// MarkShipped records that the kit went out or the pickup was booked.
// Self-shipped applications have no outbound step.
func (s *Service) MarkShipped(ctx context.Context, number core.ApplicationNumber, date time.Time) (core.BuybackApplication, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, app *core.BuybackApplication, _ *events.Buffer) error {
		var target core.BuybackStatus
		switch app.ShippingMethod {
		case core.ShippingKit:
			target = core.BuybackKitSent
		case core.ShippingPickup:
			target = core.BuybackPickupScheduled
		default:
			return invalid(app, "mark shipped")
		}
		if err := transition(app, "mark shipped", target, core.BuybackApplied); err != nil {
			return err
		}
		app.ShippedAt = &date
		return nil
	})
}

// MarkReceived records arrival of the goods.
func (s *Service) MarkReceived(ctx context.Context, number core.ApplicationNumber, date time.Time) (core.BuybackApplication, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, app *core.BuybackApplication, _ *events.Buffer) error {
		allowed := []core.BuybackStatus{core.BuybackKitSent, core.BuybackPickupScheduled}
		if app.ShippingMethod == core.ShippingSelfShip {
			allowed = append(allowed, core.BuybackApplied)
		}
		if err := transition(app, "mark received", core.BuybackReceived, allowed...); err != nil {
			return err
		}
		app.ReceivedAt = &date
		return nil
	})
}

// BeginAssessment opens the application for ranking and pricing.
func (s *Service) BeginAssessment(ctx context.Context, number core.ApplicationNumber) (core.BuybackApplication, error) {
	return s.mutate(ctx, number, func(_ context.Context, _ core.Store, app *core.BuybackApplication, _ *events.Buffer) error {
		return transition(app, "begin assessment", core.BuybackAssessing, core.BuybackReceived)
	})
}

// =============================================================================
// COMMIT TO INVENTORY
// =============================================================================

// IdempotencyKey is the history key for one committed item. A replayed
// commit of the same item is rejected by the store.
func IdempotencyKey(number core.ApplicationNumber, item core.ItemID) string {
	return fmt.Sprintf("buyback:%s:%s", number, item)
}

// CommitToInventory turns every item into stock in one unit: hardware items
// without supplied management numbers get generated ones, each item goes
// through the inventory ledger, and the application moves to in_inventory.
func (s *Service) CommitToInventory(ctx context.Context, number core.ApplicationNumber, actor string) (core.BuybackApplication, error) {
	return s.mutate(ctx, number, func(ctx context.Context, tx core.Store, app *core.BuybackApplication, buf *events.Buffer) error {
		if err := transition(app, "commit to inventory", core.BuybackInInventory,
			core.BuybackApproved, core.BuybackAutoApproved); err != nil {
			return err
		}

		customer, err := tx.GetCounterparty(ctx, app.CustomerID)
		if err != nil {
			return fmt.Errorf("load customer %s: %w", app.CustomerID, err)
		}

		now := s.clock.Now()
		ledger := s.ledger.In(tx, buf)
		seq := identifier.NewSequencer(tx)
		units := 0
		var codes []string

		for i := range app.Items {
			item := &app.Items[i]
			product, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				return fmt.Errorf("load product %s: %w", item.ProductID, err)
			}

			if item.Kind == core.ItemHardware && len(item.ManagementNumbers) == 0 {
				numbers, err := seq.ManagementNumbers(ctx, customer.CodeName(), product.Code, now, item.Quantity)
				if err != nil {
					return err
				}
				item.ManagementNumbers = numbers
			}

			if _, err := ledger.Add(ctx, inventory.AddInput{
				ProductID: item.ProductID,
				Rank:      item.Rank,
				Color:     item.Variant(),
				Quantity:  item.Quantity,
				UnitCost:  item.UnitPrice,
				Source: core.LotSource{
					Kind:           core.SourceCustomerBuyback,
					CounterpartyID: app.CustomerID,
					Reference:      string(app.Number),
				},
				ManagementNumbers: item.ManagementNumbers,
				Actor:             actor,
				Reason:            "buyback " + string(app.Number),
				Reference:         core.Reference{Kind: core.RefBuyback, ID: string(app.Number)},
				IdempotencyKey:    IdempotencyKey(app.Number, item.ID),
			}); err != nil {
				return fmt.Errorf("item %s: %w", item.ID, err)
			}
			units += item.Quantity
			codes = append(codes, product.Code)
		}

		app.InventoriedAt = &now
		buf.Publish(ctx, events.Event{
			Type:           events.BuybackCommitted,
			Subject:        string(app.Number),
			CounterpartyID: app.CustomerID,
			ProductCodes:   codes,
			Quantity:       units,
			Amount:         app.TotalPayable,
		})
		return nil
	})
}
