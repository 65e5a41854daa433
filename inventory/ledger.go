/*
ledger.go - Inventory lots and their append-only history

PURPOSE:
  The only way lot quantities change. Every Add and Deplete writes exactly one
  HistoryEntry in the same store unit as the lot update, so the history is a
  complete account of every unit that entered or left stock.

INVARIANTS:
  - Quantity never goes negative; an over-deplete leaves the lot untouched
  - Tracked lots hold exactly Quantity management numbers
  - A management number is held by at most one active lot
  - Lots at 0 drop out of active queries; they and their history stay

MERGING:
  Add merges into an active lot with the same product, rank, color, unit cost
  and source (kind + counterparty). Tracked and untracked stock never share a
  lot.

CALLERS:
  Buyback intake, sales fulfilment and the external inventory sync all come
  through Add/Deplete with the same validation. Workflows that need several
  ledger calls in one unit use In(tx, buf).
*/
package inventory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/identifier"
)

type Options struct {
	Publisher events.Publisher
	Logger    *zap.Logger
	Clock     core.Clock
}

// Ledger is the InventoryLedger.
type Ledger struct {
	store  core.Store
	pub    events.Publisher
	logger *zap.Logger
	clock  core.Clock
	inTx   bool
}

func NewLedger(store core.Store, opts Options) *Ledger {
	l := &Ledger{store: store, pub: opts.Publisher, logger: opts.Logger, clock: opts.Clock}
	if l.pub == nil {
		l.pub = events.Nop{}
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// In returns a ledger bound to an open unit. Events go to buf and must be
// flushed by the caller after commit.
func (l *Ledger) In(tx core.Store, buf *events.Buffer) *Ledger {
	c := *l
	c.store = tx
	c.pub = buf
	c.inTx = true
	return &c
}

// unit runs fn in a store unit unless the ledger is already bound to one.
func (l *Ledger) unit(ctx context.Context, fn func(tx *Ledger) error) error {
	if l.inTx {
		return fn(l)
	}
	buf := &events.Buffer{}
	err := l.store.WithTx(ctx, func(tx core.Store) error {
		return fn(l.In(tx, buf))
	})
	if err != nil {
		return err
	}
	buf.Flush(ctx, l.pub)
	return nil
}

// =============================================================================
// ADD
// =============================================================================

type AddInput struct {
	ProductID         core.ProductID
	Rank              core.Rank
	Color             string
	Quantity          int
	UnitCost          core.Money
	Source            core.LotSource
	ManagementNumbers []string
	Actor             string
	Reason            string
	Reference         core.Reference
	IdempotencyKey    string
}

type AddResult struct {
	Lot    core.InventoryLot
	Entry  core.HistoryEntry
	Merged bool
}

func (in AddInput) validate() error {
	v := &core.ValidationError{}
	if in.ProductID == "" {
		v.Add("productId", "required")
	}
	if in.Quantity < 1 {
		v.Add("quantity", "must be at least 1, got %d", in.Quantity)
	}
	if !in.Rank.Valid() {
		v.Add("rank", "unknown rank %q", in.Rank)
	}
	if in.UnitCost.IsNegative() {
		v.Add("unitCost", "must not be negative")
	}
	switch in.Source.Kind {
	case core.SourceCustomerBuyback, core.SourceSupplier, core.SourceManual:
	default:
		v.Add("source.kind", "unknown source %q", in.Source.Kind)
	}
	if n := len(in.ManagementNumbers); n > 0 {
		if n != in.Quantity {
			v.Add("managementNumbers", "%d numbers for quantity %d", n, in.Quantity)
		}
		seen := make(map[string]bool, n)
		for _, m := range in.ManagementNumbers {
			if !identifier.ValidManagementNumber(m) {
				v.Add("managementNumbers", "malformed management number %q", m)
			}
			if seen[m] {
				v.Add("managementNumbers", "duplicate management number %q", m)
			}
			seen[m] = true
		}
	}
	return v.OrNil()
}

// Add merges stock into a matching lot or creates a new one, with one
// HistoryEntry either way.
func (l *Ledger) Add(ctx context.Context, in AddInput) (AddResult, error) {
	if err := in.validate(); err != nil {
		return AddResult{}, err
	}

	var res AddResult
	err := l.unit(ctx, func(tx *Ledger) error {
		var err error
		res, err = tx.add(ctx, in)
		return err
	})
	if err != nil {
		return AddResult{}, err
	}
	return res, nil
}

func (l *Ledger) add(ctx context.Context, in AddInput) (AddResult, error) {
	product, err := l.store.GetProduct(ctx, in.ProductID)
	if err != nil {
		return AddResult{}, err
	}

	active, err := l.store.ListLots(ctx, core.LotFilter{})
	if err != nil {
		return AddResult{}, fmt.Errorf("list lots: %w", err)
	}

	tracked := len(in.ManagementNumbers) > 0
	if tracked {
		if err := checkNumbersFree(active, in.ManagementNumbers); err != nil {
			return AddResult{}, err
		}
	}

	now := l.clock.Now()
	key := core.MergeKey{
		ProductID:      in.ProductID,
		Rank:           in.Rank,
		Color:          in.Color,
		UnitCost:       in.UnitCost,
		SourceKind:     in.Source.Kind,
		CounterpartyID: in.Source.CounterpartyID,
	}

	var lot core.InventoryLot
	kind := core.HistoryCreate
	found := false
	for _, cand := range active {
		if cand.MergeKey() == key && cand.Tracked == tracked {
			lot, found = cand, true
			break
		}
	}

	before := 0
	if found {
		kind = core.HistoryMerge
		before = lot.Quantity
		lot.Quantity += in.Quantity
		lot.ManagementNumbers = append(lot.ManagementNumbers, in.ManagementNumbers...)
		lot.UpdatedAt = now
	} else {
		lot = core.InventoryLot{
			ID:                core.LotID(uuid.NewString()),
			ProductID:         in.ProductID,
			ProductCode:       product.Code,
			Rank:              in.Rank,
			Color:             in.Color,
			Quantity:          in.Quantity,
			UnitCost:          in.UnitCost,
			Source:            in.Source,
			Tracked:           tracked,
			ManagementNumbers: slices.Clone(in.ManagementNumbers),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}

	entry := core.HistoryEntry{
		ID:                core.HistoryID(uuid.NewString()),
		LotID:             lot.ID,
		Kind:              kind,
		Delta:             in.Quantity,
		Before:            before,
		After:             lot.Quantity,
		At:                now,
		Actor:             in.Actor,
		Reason:            in.Reason,
		Reference:         in.Reference,
		ManagementNumbers: slices.Clone(in.ManagementNumbers),
		UnitCost:          in.UnitCost,
		IdempotencyKey:    in.IdempotencyKey,
	}

	if err := l.store.AppendHistory(ctx, entry); err != nil {
		return AddResult{}, fmt.Errorf("append history for lot %s: %w", lot.ID, err)
	}
	if err := l.store.PutLot(ctx, &lot); err != nil {
		return AddResult{}, fmt.Errorf("put lot %s: %w", lot.ID, err)
	}

	l.logger.Info("stock added",
		zap.String("lot", string(lot.ID)),
		zap.String("product_code", lot.ProductCode),
		zap.String("rank", string(lot.Rank)),
		zap.Int("delta", in.Quantity),
		zap.Int("quantity", lot.Quantity),
		zap.Bool("merged", found),
	)
	return AddResult{Lot: lot, Entry: entry, Merged: found}, nil
}

func checkNumbersFree(active []core.InventoryLot, numbers []string) error {
	held := make(map[string]core.LotID)
	for _, lot := range active {
		for _, m := range lot.ManagementNumbers {
			held[m] = lot.ID
		}
	}
	v := &core.ValidationError{}
	for _, m := range numbers {
		if id, ok := held[m]; ok {
			v.Add("managementNumbers", "%s already held by lot %s", m, id)
		}
	}
	return v.OrNil()
}

// =============================================================================
// DEPLETE
// =============================================================================

type DepleteInput struct {
	LotID             core.LotID
	Quantity          int
	ManagementNumbers []string // units to remove from a tracked lot; FIFO when empty
	Actor             string
	Reason            string
	Reference         core.Reference
	IdempotencyKey    string
}

type DepleteResult struct {
	Lot   core.InventoryLot
	Entry core.HistoryEntry
}

// Deplete removes stock from one lot. Requesting more than the lot holds
// fails with InsufficientStockError and changes nothing.
func (l *Ledger) Deplete(ctx context.Context, in DepleteInput) (DepleteResult, error) {
	if in.Quantity < 1 {
		return DepleteResult{}, core.NewValidationError("quantity", "must be at least 1, got %d", in.Quantity)
	}

	var res DepleteResult
	err := l.unit(ctx, func(tx *Ledger) error {
		var err error
		res, err = tx.deplete(ctx, in)
		return err
	})
	if err != nil {
		return DepleteResult{}, err
	}
	return res, nil
}

func (l *Ledger) deplete(ctx context.Context, in DepleteInput) (DepleteResult, error) {
	lot, err := l.store.GetLot(ctx, in.LotID)
	if err != nil {
		return DepleteResult{}, err
	}
	if in.Quantity > lot.Quantity {
		return DepleteResult{}, &core.InsufficientStockError{Shortages: []core.StockShortage{
			{LotID: lot.ID, Available: lot.Quantity, Requested: in.Quantity},
		}}
	}

	moved, err := takeNumbers(lot, in.Quantity, in.ManagementNumbers)
	if err != nil {
		return DepleteResult{}, err
	}

	now := l.clock.Now()
	before := lot.Quantity
	lot.Quantity -= in.Quantity
	if lot.Tracked {
		lot.ManagementNumbers = slices.DeleteFunc(lot.ManagementNumbers, func(m string) bool {
			return slices.Contains(moved, m)
		})
	}
	lot.UpdatedAt = now
	if lot.Quantity == 0 {
		lot.DepletedAt = &now
	}

	entry := core.HistoryEntry{
		ID:                core.HistoryID(uuid.NewString()),
		LotID:             lot.ID,
		Kind:              core.HistoryDeplete,
		Delta:             -in.Quantity,
		Before:            before,
		After:             lot.Quantity,
		At:                now,
		Actor:             in.Actor,
		Reason:            in.Reason,
		Reference:         in.Reference,
		ManagementNumbers: moved,
		UnitCost:          lot.UnitCost,
		IdempotencyKey:    in.IdempotencyKey,
	}

	if err := l.store.AppendHistory(ctx, entry); err != nil {
		return DepleteResult{}, fmt.Errorf("append history for lot %s: %w", lot.ID, err)
	}
	if err := l.store.PutLot(ctx, &lot); err != nil {
		return DepleteResult{}, fmt.Errorf("put lot %s: %w", lot.ID, err)
	}

	l.logger.Info("stock depleted",
		zap.String("lot", string(lot.ID)),
		zap.String("product_code", lot.ProductCode),
		zap.Int("delta", -in.Quantity),
		zap.Int("quantity", lot.Quantity),
		zap.String("reason", in.Reason),
	)
	if lot.Quantity == 0 {
		l.pub.Publish(ctx, events.Event{
			Type:        events.InventoryLotDepleted,
			Subject:     string(lot.ID),
			ProductCode: lot.ProductCode,
			Quantity:    in.Quantity,
		})
	}
	return DepleteResult{Lot: lot, Entry: entry}, nil
}

// takeNumbers picks the management numbers leaving a lot.
func takeNumbers(lot core.InventoryLot, qty int, named []string) ([]string, error) {
	if !lot.Tracked {
		if len(named) > 0 {
			return nil, core.NewValidationError("managementNumbers", "lot %s does not track management numbers", lot.ID)
		}
		return nil, nil
	}
	if len(named) == 0 {
		return slices.Clone(lot.ManagementNumbers[:qty]), nil
	}

	v := &core.ValidationError{}
	if len(named) != qty {
		v.Add("managementNumbers", "%d numbers for quantity %d", len(named), qty)
	}
	seen := make(map[string]bool, len(named))
	for _, m := range named {
		if !slices.Contains(lot.ManagementNumbers, m) {
			v.Add("managementNumbers", "%s is not in lot %s", m, lot.ID)
		}
		if seen[m] {
			v.Add("managementNumbers", "duplicate management number %q", m)
		}
		seen[m] = true
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return slices.Clone(named), nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Filter narrows Query. Zero values match everything.
type Filter struct {
	ProductID       core.ProductID
	ProductCode     string
	Rank            core.Rank
	Manufacturer    core.Manufacturer
	Search          string // case-insensitive over product name, model and color
	IncludeDepleted bool
}

// Query lists lots matching f, oldest first.
func (l *Ledger) Query(ctx context.Context, f Filter) ([]core.InventoryLot, error) {
	lots, err := l.store.ListLots(ctx, core.LotFilter{ProductID: f.ProductID, IncludeDepleted: f.IncludeDepleted})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}

	var products map[core.ProductID]core.Product
	if f.Manufacturer != "" || f.Search != "" {
		if products, err = l.productIndex(ctx); err != nil {
			return nil, err
		}
	}
	needle := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]core.InventoryLot, 0, len(lots))
	for _, lot := range lots {
		if f.ProductCode != "" && lot.ProductCode != f.ProductCode {
			continue
		}
		if f.Rank != "" && lot.Rank != f.Rank {
			continue
		}
		if f.Manufacturer != "" && products[lot.ProductID].Manufacturer != f.Manufacturer {
			continue
		}
		if needle != "" && !matches(products[lot.ProductID], lot, needle) {
			continue
		}
		out = append(out, lot)
	}
	return out, nil
}

func matches(p core.Product, lot core.InventoryLot, needle string) bool {
	for _, hay := range []string{p.Name, p.Model, lot.Color, lot.ProductCode} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

func (l *Ledger) productIndex(ctx context.Context) (map[core.ProductID]core.Product, error) {
	products, err := l.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	idx := make(map[core.ProductID]core.Product, len(products))
	for _, p := range products {
		idx[p.ID] = p
	}
	return idx, nil
}

func (l *Ledger) Lot(ctx context.Context, id core.LotID) (core.InventoryLot, error) {
	return l.store.GetLot(ctx, id)
}

// History returns a lot's entries, newest first.
func (l *Ledger) History(ctx context.Context, id core.LotID) ([]core.HistoryEntry, error) {
	if _, err := l.store.GetLot(ctx, id); err != nil {
		return nil, err
	}
	entries, err := l.store.LotHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lot history %s: %w", id, err)
	}
	slices.Reverse(entries)
	return entries, nil
}

// =============================================================================
// SUMMARY - Valuation of active stock
// =============================================================================

type SummaryLine struct {
	ProductID   core.ProductID
	ProductCode string
	Rank        core.Rank
	Lots        int
	Units       int
	Cost        core.Money // Σ unit cost × quantity
}

// Summary aggregates active stock per product and rank, ordered by product
// code then rank best-first.
func (l *Ledger) Summary(ctx context.Context) ([]SummaryLine, error) {
	lots, err := l.store.ListLots(ctx, core.LotFilter{})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}

	type key struct {
		product core.ProductID
		rank    core.Rank
	}
	idx := make(map[key]*SummaryLine)
	var out []*SummaryLine
	for _, lot := range lots {
		k := key{lot.ProductID, lot.Rank}
		line, ok := idx[k]
		if !ok {
			line = &SummaryLine{ProductID: lot.ProductID, ProductCode: lot.ProductCode, Rank: lot.Rank}
			idx[k] = line
			out = append(out, line)
		}
		line.Lots++
		line.Units += lot.Quantity
		line.Cost += lot.UnitCost.Mul(lot.Quantity)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProductCode != out[j].ProductCode {
			return out[i].ProductCode < out[j].ProductCode
		}
		return out[i].Rank.Better(out[j].Rank)
	})
	lines := make([]SummaryLine, len(out))
	for i, line := range out {
		lines[i] = *line
	}
	return lines, nil
}
