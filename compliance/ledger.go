/*
ledger.go - Secondhand-dealer register reconstruction

PURPOSE:
  Derives the acquisition/disposition register from data that already
  exists. Nothing here is stored; running Reconstruct twice over the same
  data gives the same records.

SOURCES:
  acquisition:  customer-sourced create/merge history entries
                in_inventory buyback applications
  disposition:  allocations of shipped sales requests
                sales-referenced depletion history entries

  The same unit usually shows up from two sources. Records are deduplicated
  on (description, price, day, counterparty name, counterparty address,
  management number, line), the first one seen wins, and the result is
  sorted by (day, type, SKU, management number). The line is the buyback item
  or sales allocation a record came from; both sources derive it from the
  same history idempotency key, so distinct items never collapse.

  Untracked stock yields one record per entry or allocation, carrying the
  quantity. Tracked stock yields one record per management number.
*/
package compliance

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/warp/console-buyback/buyback"
	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/sales"
)

type RecordType string

const (
	Acquisition RecordType = "acquisition"
	Disposition RecordType = "disposition"
)

// Record is one register line.
type Record struct {
	Date             time.Time // day, UTC midnight
	Type             RecordType
	SKU              string // product code + "-" + rank
	ManagementNumber string
	ProductName      string
	Description      string
	Rank             core.Rank
	Quantity         int
	Price            core.Money // per unit

	CounterpartyID      core.CounterpartyID
	CounterpartyName    string
	CounterpartyAddress string
	Occupation          string
	Age                 int // acquisitions only, 0 when unknown

	Reference core.Reference

	line string // buyback item or sales allocation key, dedupe only
}

// Filter narrows Reconstruct. Zero From/To are unbounded; both are inclusive
// days. An empty Type returns both types.
type Filter struct {
	From time.Time
	To   time.Time
	Type RecordType
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f Filter) match(r Record) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && r.Date.Before(day(f.From)) {
		return false
	}
	if !f.To.IsZero() && r.Date.After(day(f.To)) {
		return false
	}
	return true
}

type Ledger struct {
	store core.Store
}

func NewLedger(store core.Store) *Ledger {
	return &Ledger{store: store}
}

// Reconstruct reads one consistent snapshot and derives the register.
func (l *Ledger) Reconstruct(ctx context.Context, f Filter) ([]Record, error) {
	if f.Type != "" && f.Type != Acquisition && f.Type != Disposition {
		return nil, core.NewValidationError("type", "unknown record type %q", f.Type)
	}
	if !f.From.IsZero() && !f.To.IsZero() && day(f.To).Before(day(f.From)) {
		return nil, core.NewValidationError("to", "must not be before from")
	}

	var records []Record
	err := l.store.WithTx(ctx, func(tx core.Store) error {
		snap, err := load(ctx, tx)
		if err != nil {
			return err
		}
		records = snap.derive()
		return nil
	})
	if err != nil {
		return nil, err
	}

	records = dedupe(records)
	records = slices.DeleteFunc(records, func(r Record) bool { return !f.match(r) })
	slices.SortStableFunc(records, func(a, b Record) int {
		return cmp.Or(
			a.Date.Compare(b.Date),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.SKU, b.SKU),
			cmp.Compare(a.ManagementNumber, b.ManagementNumber),
		)
	})
	return records, nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

type snapshot struct {
	products       map[core.ProductID]core.Product
	counterparties map[core.CounterpartyID]core.Counterparty
	lots           map[core.LotID]core.InventoryLot
	history        []core.HistoryEntry
	apps           []core.BuybackApplication
	appsByNumber   map[string]core.BuybackApplication
	requests       []core.SalesRequest
	reqsByNumber   map[string]core.SalesRequest
}

func load(ctx context.Context, tx core.Store) (*snapshot, error) {
	s := &snapshot{
		products:       make(map[core.ProductID]core.Product),
		counterparties: make(map[core.CounterpartyID]core.Counterparty),
		lots:           make(map[core.LotID]core.InventoryLot),
		appsByNumber:   make(map[string]core.BuybackApplication),
		reqsByNumber:   make(map[string]core.SalesRequest),
	}

	products, err := tx.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	cps, err := tx.ListCounterparties(ctx)
	if err != nil {
		return nil, fmt.Errorf("list counterparties: %w", err)
	}
	for _, c := range cps {
		s.counterparties[c.ID] = c
	}
	lots, err := tx.ListLots(ctx, core.LotFilter{IncludeDepleted: true})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	for _, lot := range lots {
		s.lots[lot.ID] = lot
	}
	if s.history, err = tx.ListHistory(ctx); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if s.apps, err = tx.ListApplications(ctx, core.BuybackFilter{Status: core.BuybackInInventory}); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	for _, a := range s.apps {
		s.appsByNumber[string(a.Number)] = a
	}
	if s.requests, err = tx.ListSalesRequests(ctx, core.SalesFilter{Status: core.SalesShipped}); err != nil {
		return nil, fmt.Errorf("list sales requests: %w", err)
	}
	for _, r := range s.requests {
		s.reqsByNumber[string(r.Number)] = r
	}
	return s, nil
}

// =============================================================================
// DERIVATION
// =============================================================================

// base fills the product and counterparty columns.
func (s *snapshot) base(typ RecordType, at time.Time, pid core.ProductID, rank core.Rank, variant string, cpID core.CounterpartyID, price core.Money, ref core.Reference, line string) Record {
	p := s.products[pid]
	cp := s.counterparties[cpID]
	desc := p.Name
	if variant != "" {
		desc += " " + variant
	}
	r := Record{
		Date:                day(at),
		Type:                typ,
		SKU:                 p.Code + "-" + string(rank),
		ProductName:         p.Name,
		Description:         desc,
		Rank:                rank,
		Price:               price,
		CounterpartyID:      cpID,
		CounterpartyName:    cp.Name,
		CounterpartyAddress: cp.Address,
		Occupation:          cp.Occupation,
		Reference:           ref,
		line:                line,
	}
	if typ == Acquisition {
		r.Age = cp.AgeAt(at)
	}
	return r
}

// expand emits one record per management number, or a single record for qty
// untracked units.
func expand(r Record, numbers []string, qty int) []Record {
	if len(numbers) == 0 {
		r.Quantity = qty
		return []Record{r}
	}
	out := make([]Record, len(numbers))
	for i, m := range numbers {
		out[i] = r
		out[i].ManagementNumber = m
		out[i].Quantity = 1
	}
	return out
}

func (s *snapshot) derive() []Record {
	var out []Record
	for _, e := range s.history {
		out = append(out, s.fromHistory(e)...)
	}
	for _, a := range s.apps {
		out = append(out, s.fromApplication(a)...)
	}
	for _, r := range s.requests {
		out = append(out, s.fromSale(r)...)
	}
	return out
}

func (s *snapshot) fromHistory(e core.HistoryEntry) []Record {
	lot, ok := s.lots[e.LotID]
	if !ok {
		return nil
	}

	switch {
	case e.Kind != core.HistoryDeplete && e.Delta > 0 && lot.Source.Kind == core.SourceCustomerBuyback:
		at := e.At
		if app, ok := s.appsByNumber[e.Reference.ID]; ok && app.InventoriedAt != nil {
			at = *app.InventoriedAt
		}
		r := s.base(Acquisition, at, lot.ProductID, lot.Rank, lot.Color, lot.Source.CounterpartyID, e.UnitCost, e.Reference, historyLine(e))
		return expand(r, e.ManagementNumbers, e.Delta)

	case e.Kind == core.HistoryDeplete && e.Reference.Kind == core.RefSales:
		req, ok := s.reqsByNumber[e.Reference.ID]
		if !ok {
			// Request not shipped (or gone); the allocation side has nothing to add.
			return nil
		}
		at := e.At
		if req.ShippedAt != nil {
			at = *req.ShippedAt
		}
		// The price belongs to the allocation's item. Without a matching
		// allocation the unit still left stock; it is recorded at price 0.
		var price core.Money
		if a := allocationFor(req, e); a != nil {
			if item := req.Item(a.ItemID); item != nil {
				price = item.UnitPrice
			}
		}
		r := s.base(Disposition, at, lot.ProductID, lot.Rank, lot.Color, req.CounterpartyID, price, e.Reference, historyLine(e))
		return expand(r, e.ManagementNumbers, -e.Delta)
	}
	return nil
}

func (s *snapshot) fromApplication(a core.BuybackApplication) []Record {
	if a.InventoriedAt == nil {
		return nil
	}
	ref := core.Reference{Kind: core.RefBuyback, ID: string(a.Number)}
	var out []Record
	for _, it := range a.Items {
		r := s.base(Acquisition, *a.InventoriedAt, it.ProductID, it.Rank, it.Variant(), a.CustomerID, it.UnitPrice, ref,
			buyback.IdempotencyKey(a.Number, it.ID))
		out = append(out, expand(r, it.ManagementNumbers, it.Quantity)...)
	}
	return out
}

func (s *snapshot) fromSale(req core.SalesRequest) []Record {
	if req.ShippedAt == nil {
		return nil
	}
	ref := core.Reference{Kind: core.RefSales, ID: string(req.Number)}
	var out []Record
	for _, a := range req.Allocations {
		item := req.Item(a.ItemID)
		if item == nil {
			continue
		}
		lot := s.lots[a.LotID]
		r := s.base(Disposition, *req.ShippedAt, item.ProductID, lot.Rank, lot.Color, req.CounterpartyID, item.UnitPrice, ref,
			sales.FulfillKey(req.Number, a))
		out = append(out, expand(r, a.ManagementNumbers, a.Quantity)...)
	}
	return out
}

// =============================================================================
// DEDUPLICATION
// =============================================================================

// historyLine is the line an entry belongs to. Entries written by the
// workflows carry their item or allocation key; others stand alone.
func historyLine(e core.HistoryEntry) string {
	if e.IdempotencyKey != "" {
		return e.IdempotencyKey
	}
	return "history:" + string(e.ID)
}

// allocationFor finds the allocation a depletion entry was written for: by
// its fulfilment key, else the only allocation drawing on its lot.
func allocationFor(req core.SalesRequest, e core.HistoryEntry) *core.Allocation {
	var onLot []*core.Allocation
	for i := range req.Allocations {
		a := &req.Allocations[i]
		if e.IdempotencyKey != "" && sales.FulfillKey(req.Number, *a) == e.IdempotencyKey {
			return a
		}
		if a.LotID == e.LotID {
			onLot = append(onLot, a)
		}
	}
	if len(onLot) == 1 {
		return onLot[0]
	}
	return nil
}

type dedupeKey struct {
	description      string
	price            core.Money
	date             time.Time
	counterparty     string
	address          string
	managementNumber string
	line             string
}

func dedupe(records []Record) []Record {
	seen := make(map[dedupeKey]bool, len(records))
	out := records[:0]
	for _, r := range records {
		k := dedupeKey{r.Description, r.Price, r.Date, r.CounterpartyName, r.CounterpartyAddress, r.ManagementNumber, r.line}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
