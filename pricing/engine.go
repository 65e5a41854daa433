/*
engine.go - Price computation from base tables and adjustments

PURPOSE:
  The price charged to (or paid to) any counterparty is a deterministic
  function of one base price table cell plus at most one adjustment for
  (counterparty, product code).

COMPUTATION:
  1. Base price absent or 0  → FinalPrice 0, Reason "no base price set"
  2. No adjustment           → FinalPrice = base
  3. Adjustment for another rank → FinalPrice = base
  4. percentage → round(base × (1 + value/100)), half away from zero
     fixed      → base + value

  A result below zero is handled by the NegativePolicy. A missing price is
  never an error; callers check FinalPrice for zero.

SEE ALSO:
  - core/pricing.go: PriceTable and PriceAdjustment
  - sales/requote.go: reacts to the events published by the setters below
*/
package pricing

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
)

const (
	ReasonNoBasePrice = "no base price set"
	ReasonClamped     = "adjusted price below zero, clamped"
	ReasonBelowZero   = "adjusted price below zero"
)

// NegativePolicy decides what happens when an adjustment pushes a price below
// zero.
type NegativePolicy string

const (
	NegativeClamp  NegativePolicy = "clamp"  // FinalPrice 0, with a Reason
	NegativeReject NegativePolicy = "reject" // FinalPrice 0, Reason says below zero
	NegativeAllow  NegativePolicy = "allow"  // negative FinalPrice returned as is
)

func ParseNegativePolicy(s string) (NegativePolicy, error) {
	switch p := NegativePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return NegativeClamp, nil
	case NegativeClamp, NegativeReject, NegativeAllow:
		return p, nil
	}
	return "", fmt.Errorf("unknown negative price policy %q", s)
}

// Query selects one price.
type Query struct {
	Direction      core.PriceDirection
	ProductCode    string
	Rank           core.Rank
	CounterpartyID core.CounterpartyID
}

// Result is the outcome of ComputePrice.
type Result struct {
	BasePrice  core.Money
	Adjustment *core.PriceAdjustment // the applied adjustment, nil when none applied
	FinalPrice core.Money
	Reason     string
}

// Adjusted reports whether an adjustment changed the base price.
func (r Result) Adjusted() bool { return r.Adjustment != nil }

type Options struct {
	NegativePolicy NegativePolicy
	Publisher      events.Publisher
	Logger         *zap.Logger
	Clock          core.Clock
}

// Engine reads and maintains price tables.
type Engine struct {
	store  core.Store
	policy NegativePolicy
	pub    events.Publisher
	logger *zap.Logger
	clock  core.Clock
}

func NewEngine(store core.Store, opts Options) *Engine {
	e := &Engine{
		store:  store,
		policy: opts.NegativePolicy,
		pub:    opts.Publisher,
		logger: opts.Logger,
		clock:  opts.Clock,
	}
	if e.policy == "" {
		e.policy = NegativeClamp
	}
	if e.pub == nil {
		e.pub = events.Nop{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// With returns an engine reading through s, typically a transactional view.
func (e *Engine) With(s core.Store) *Engine {
	c := *e
	c.store = s
	return &c
}

func (e *Engine) Policy() NegativePolicy { return e.policy }

// =============================================================================
// COMPUTATION
// =============================================================================

// ComputePrice resolves the price for q. The error is non-nil only when the
// store fails.
func (e *Engine) ComputePrice(ctx context.Context, q Query) (Result, error) {
	base, ok, err := e.store.GetPrice(ctx, q.Direction, q.ProductCode, q.Rank)
	if err != nil {
		return Result{}, fmt.Errorf("get base price %s/%s/%s: %w", q.Direction, q.ProductCode, q.Rank, err)
	}
	if !ok || base == 0 {
		return Result{Reason: ReasonNoBasePrice}, nil
	}

	res := Result{BasePrice: base, FinalPrice: base}
	if q.CounterpartyID == "" {
		return res, nil
	}

	adj, err := e.store.GetAdjustment(ctx, q.CounterpartyID, q.ProductCode)
	if err != nil {
		return Result{}, fmt.Errorf("get adjustment %s/%s: %w", q.CounterpartyID, q.ProductCode, err)
	}
	if adj == nil || !adj.AppliesTo(q.Rank) {
		return res, nil
	}

	res.Adjustment = adj
	res.FinalPrice = Apply(base, *adj)
	if res.FinalPrice.IsNegative() {
		switch e.policy {
		case NegativeAllow:
		case NegativeReject:
			res.FinalPrice = 0
			res.Reason = ReasonBelowZero
		default:
			res.FinalPrice = 0
			res.Reason = ReasonClamped
		}
	}
	return res, nil
}

// Apply computes the adjusted price without any negative handling.
func Apply(base core.Money, adj core.PriceAdjustment) core.Money {
	switch adj.Kind {
	case core.AdjustPercentage:
		v := decimal.NewFromInt(int64(base)).
			Mul(decimal.NewFromInt(100 + adj.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0)
		return core.Money(v.IntPart())
	case core.AdjustFixed:
		return base + core.Money(adj.Value)
	}
	return base
}

// =============================================================================
// TABLE MAINTENANCE
// =============================================================================

func validateCell(v *core.ValidationError, field string, dir core.PriceDirection, code string, rank core.Rank, price core.Money) {
	if !dir.Valid() {
		v.Add(field+".direction", "unknown direction %q", dir)
	}
	if code == "" {
		v.Add(field+".productCode", "required")
	}
	if !rank.Valid() {
		v.Add(field+".rank", "unknown rank %q", rank)
	}
	if price.IsNegative() {
		v.Add(field+".price", "must not be negative")
	}
}

// SetBasePrice writes one table cell.
func (e *Engine) SetBasePrice(ctx context.Context, dir core.PriceDirection, code string, rank core.Rank, price core.Money) error {
	v := &core.ValidationError{}
	validateCell(v, "price", dir, code, rank, price)
	if err := v.OrNil(); err != nil {
		return err
	}

	entry := core.PriceEntry{Direction: dir, ProductCode: code, Rank: rank, Price: price, UpdatedAt: e.clock.Now()}
	if err := e.store.PutPrice(ctx, entry); err != nil {
		return fmt.Errorf("put price: %w", err)
	}

	e.logger.Info("base price set",
		zap.String("direction", string(dir)),
		zap.String("product_code", code),
		zap.String("rank", string(rank)),
		zap.Int64("price", int64(price)),
	)
	e.pub.Publish(ctx, events.Event{
		Type:        events.PricingBasePriceChanged,
		Direction:   dir,
		ProductCode: code,
		Amount:      price,
	})
	return nil
}

// SetPriceTable writes every cell of t in one unit.
func (e *Engine) SetPriceTable(ctx context.Context, t core.PriceTable) error {
	entries := t.Entries()
	v := &core.ValidationError{}
	if !t.Direction.Valid() {
		v.Add("direction", "unknown direction %q", t.Direction)
	}
	for _, en := range entries {
		validateCell(v, fmt.Sprintf("prices[%s][%s]", en.ProductCode, en.Rank), t.Direction, en.ProductCode, en.Rank, en.Price)
	}
	if err := v.OrNil(); err != nil {
		return err
	}

	now := e.clock.Now()
	err := e.store.WithTx(ctx, func(tx core.Store) error {
		for _, en := range entries {
			en.UpdatedAt = now
			if err := tx.PutPrice(ctx, en); err != nil {
				return fmt.Errorf("put price %s/%s: %w", en.ProductCode, en.Rank, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	codes := make([]string, 0, len(t.Prices))
	for code := range t.Prices {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	e.logger.Info("price table set",
		zap.String("direction", string(t.Direction)),
		zap.Int("cells", len(entries)),
	)
	e.pub.Publish(ctx, events.Event{
		Type:         events.PricingBasePriceChanged,
		Direction:    t.Direction,
		ProductCodes: codes,
	})
	return nil
}

// Table reads a whole direction.
func (e *Engine) Table(ctx context.Context, dir core.PriceDirection) (core.PriceTable, error) {
	entries, err := e.store.ListPrices(ctx, dir)
	if err != nil {
		return core.PriceTable{}, fmt.Errorf("list prices: %w", err)
	}
	t := core.NewPriceTable(dir)
	for _, en := range entries {
		t.Set(en.ProductCode, en.Rank, en.Price)
	}
	return t, nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// SetAdjustment stores adj, replacing any adjustment with the same
// (counterparty, product code).
func (e *Engine) SetAdjustment(ctx context.Context, adj core.PriceAdjustment) error {
	v := &core.ValidationError{}
	if adj.CounterpartyID == "" {
		v.Add("counterpartyId", "required")
	}
	if adj.ProductCode == "" {
		v.Add("productCode", "required")
	}
	if !adj.Kind.Valid() {
		v.Add("kind", "unknown adjustment kind %q", adj.Kind)
	}
	if adj.RankScope != nil && !adj.RankScope.Valid() {
		v.Add("rankScope", "unknown rank %q", *adj.RankScope)
	}
	if err := v.OrNil(); err != nil {
		return err
	}

	adj.UpdatedAt = e.clock.Now()
	if err := e.store.PutAdjustment(ctx, adj); err != nil {
		return fmt.Errorf("put adjustment: %w", err)
	}

	e.logger.Info("price adjustment set",
		zap.String("counterparty", string(adj.CounterpartyID)),
		zap.String("product_code", adj.ProductCode),
		zap.String("kind", string(adj.Kind)),
		zap.Int64("value", adj.Value),
	)
	e.pub.Publish(ctx, events.Event{
		Type:           events.PricingAdjustmentChanged,
		CounterpartyID: adj.CounterpartyID,
		ProductCode:    adj.ProductCode,
	})
	return nil
}

func (e *Engine) RemoveAdjustment(ctx context.Context, cp core.CounterpartyID, code string) error {
	if err := e.store.DeleteAdjustment(ctx, cp, code); err != nil {
		return fmt.Errorf("delete adjustment: %w", err)
	}
	e.logger.Info("price adjustment removed",
		zap.String("counterparty", string(cp)),
		zap.String("product_code", code),
	)
	e.pub.Publish(ctx, events.Event{
		Type:           events.PricingAdjustmentChanged,
		CounterpartyID: cp,
		ProductCode:    code,
	})
	return nil
}

// Adjustments lists adjustments for cp, or all of them when cp is empty.
func (e *Engine) Adjustments(ctx context.Context, cp core.CounterpartyID) ([]core.PriceAdjustment, error) {
	out, err := e.store.ListAdjustments(ctx, cp)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	return out, nil
}
