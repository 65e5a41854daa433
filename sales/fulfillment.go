package sales

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/inventory"
)

// =============================================================================
// ALLOCATION
// =============================================================================

// SelectAllocation sets how many units of an item come from a lot. The
// (item, lot) pair is upserted; quantity 0 removes it. Inventory is not
// touched until Fulfill.
func (s *Service) SelectAllocation(ctx context.Context, number core.RequestNumber, itemID core.ItemID, lotID core.LotID, qty int) (core.SalesRequest, error) {
	if qty < 0 {
		return core.SalesRequest{}, core.NewValidationError("quantity", "must not be negative, got %d", qty)
	}

	return s.mutate(ctx, number, func(ctx context.Context, tx core.Store, req *core.SalesRequest, _ *events.Buffer) error {
		if req.Status != core.SalesApproved && req.Status != core.SalesPaymentConfirmed {
			return invalid(req, "select allocation")
		}
		item := req.Item(itemID)
		if item == nil {
			return core.NotFound("sales item", itemID)
		}

		existing := slices.IndexFunc(req.Allocations, func(a core.Allocation) bool {
			return a.ItemID == itemID && a.LotID == lotID
		})
		if qty == 0 {
			if existing >= 0 {
				req.Allocations = slices.Delete(req.Allocations, existing, existing+1)
			}
			return nil
		}

		lot, err := tx.GetLot(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.ProductID != item.ProductID {
			return core.NewValidationError("lotId", "lot %s holds %s, item wants %s", lot.ID, lot.ProductID, item.ProductID)
		}

		// Units of this lot already promised to other items of the request.
		onLot := 0
		for i, a := range req.Allocations {
			if a.LotID == lotID && i != existing {
				onLot += a.Quantity
			}
		}
		if onLot+qty > lot.Quantity {
			return &core.InsufficientStockError{Shortages: []core.StockShortage{
				{LotID: lot.ID, Available: lot.Quantity - onLot, Requested: qty},
			}}
		}

		total := qty
		for i, a := range req.Allocations {
			if a.ItemID == itemID && i != existing {
				total += a.Quantity
			}
		}
		if total > item.Quantity {
			return &core.OverAllocationError{ItemID: itemID, Requested: item.Quantity, Allocated: total}
		}

		alloc := core.Allocation{ItemID: itemID, LotID: lotID, Quantity: qty, UnitCost: lot.UnitCost}
		if existing >= 0 {
			req.Allocations[existing] = alloc
		} else {
			req.Allocations = append(req.Allocations, alloc)
		}
		return nil
	})
}

// mismatches lists items whose allocations don't add up to the requested
// quantity.
func mismatches(req core.SalesRequest) []core.AllocationGap {
	var gaps []core.AllocationGap
	for _, it := range req.Items {
		if got := req.AllocatedQuantity(it.ID); got != it.Quantity {
			gaps = append(gaps, core.AllocationGap{ItemID: it.ID, Requested: it.Quantity, Allocated: got})
		}
	}
	return gaps
}

// =============================================================================
// FULFILL - The commit point
// =============================================================================

type FulfillInput struct {
	ShippedDate    time.Time
	TrackingNumber string
	Actor          string
}

// FulfillKey is the history idempotency key for one fulfilled allocation.
func FulfillKey(number core.RequestNumber, a core.Allocation) string {
	return fmt.Sprintf("sales:%s:%s:%s", number, a.ItemID, a.LotID)
}

// Fulfill depletes every allocation and ships the request in one unit.
// Either every depletion and the status change commit, or nothing does.
func (s *Service) Fulfill(ctx context.Context, number core.RequestNumber, in FulfillInput) (core.SalesRequest, error) {
	if strings.TrimSpace(in.TrackingNumber) == "" {
		return core.SalesRequest{}, core.NewValidationError("trackingNumber", "required")
	}

	return s.mutate(ctx, number, func(ctx context.Context, tx core.Store, req *core.SalesRequest, buf *events.Buffer) error {
		if req.Status != core.SalesPaymentConfirmed {
			return invalid(req, "fulfill")
		}
		if gaps := mismatches(*req); len(gaps) > 0 {
			return &core.AllocationMismatchError{Items: gaps}
		}
		if err := checkStock(ctx, tx, req.Allocations); err != nil {
			return err
		}

		ledger := s.ledger.In(tx, buf)
		var revenue, cost core.Money
		for i := range req.Allocations {
			a := &req.Allocations[i]
			res, err := ledger.Deplete(ctx, inventory.DepleteInput{
				LotID:          a.LotID,
				Quantity:       a.Quantity,
				Actor:          in.Actor,
				Reason:         string(req.Number),
				Reference:      core.Reference{Kind: core.RefSales, ID: string(req.Number)},
				IdempotencyKey: FulfillKey(req.Number, *a),
			})
			if err != nil {
				return fmt.Errorf("allocation %s/%s: %w", a.ItemID, a.LotID, err)
			}
			a.UnitCost = res.Entry.UnitCost
			a.ManagementNumbers = res.Entry.ManagementNumbers

			item := req.Item(a.ItemID)
			revenue += item.UnitPrice.Mul(a.Quantity)
			cost += a.UnitCost.Mul(a.Quantity)
		}

		if err := transition(req, "fulfill", core.SalesShipped, core.SalesPaymentConfirmed); err != nil {
			return err
		}
		shipped := in.ShippedDate
		if shipped.IsZero() {
			shipped = s.clock.Now()
		}
		req.ShippedAt = &shipped
		req.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
		req.Revenue = revenue
		req.AcquisitionCost = cost
		req.Profit = revenue - cost

		codes := make([]string, 0, len(req.Items))
		for _, it := range req.Items {
			codes = append(codes, it.ProductCode)
		}
		buf.Publish(ctx, events.Event{
			Type:           events.SalesShipped,
			Subject:        string(req.Number),
			CounterpartyID: req.CounterpartyID,
			ProductCodes:   codes,
			Amount:         req.Profit,
		})
		s.logger.Info("sales request fulfilled",
			zap.String("request", string(req.Number)),
			zap.Int64("revenue", int64(revenue)),
			zap.Int64("cost", int64(cost)),
			zap.Int64("profit", int64(req.Profit)),
		)
		return nil
	})
}

// checkStock reports every lot that can't cover its allocations, before any
// depletion runs.
func checkStock(ctx context.Context, tx core.Store, allocs []core.Allocation) error {
	need := make(map[core.LotID]int)
	var order []core.LotID
	for _, a := range allocs {
		if _, ok := need[a.LotID]; !ok {
			order = append(order, a.LotID)
		}
		need[a.LotID] += a.Quantity
	}

	var shortages []core.StockShortage
	for _, id := range order {
		lot, err := tx.GetLot(ctx, id)
		if err != nil {
			return err
		}
		if need[id] > lot.Quantity {
			shortages = append(shortages, core.StockShortage{LotID: id, Available: lot.Quantity, Requested: need[id]})
		}
	}
	if len(shortages) > 0 {
		return &core.InsufficientStockError{Shortages: shortages}
	}
	return nil
}

// =============================================================================
// MARGIN
// =============================================================================

type Margin struct {
	Revenue core.Money
	Cost    core.Money
	Profit  core.Money
	Percent decimal.Decimal // profit / revenue × 100, 2 places; 0 without revenue
}

// Margin reports the request's goods margin from its allocations. Shipped
// requests use the recorded costs; earlier ones are a projection.
func (s *Service) Margin(ctx context.Context, number core.RequestNumber) (Margin, error) {
	req, err := s.store.GetSalesRequest(ctx, number)
	if err != nil {
		return Margin{}, err
	}
	return ComputeMargin(req), nil
}

func ComputeMargin(req core.SalesRequest) Margin {
	var m Margin
	for _, a := range req.Allocations {
		item := req.Item(a.ItemID)
		if item == nil {
			continue
		}
		m.Revenue += item.UnitPrice.Mul(a.Quantity)
		m.Cost += a.UnitCost.Mul(a.Quantity)
	}
	m.Profit = m.Revenue - m.Cost
	m.Percent = decimal.Zero
	if m.Revenue != 0 {
		m.Percent = decimal.NewFromInt(int64(m.Profit)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(m.Revenue))).
			Round(2)
	}
	return m
}
