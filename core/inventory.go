package core

import (
	"slices"
	"time"
)

// =============================================================================
// INVENTORY LOT - A stock-keeping unit
// =============================================================================

type SourceKind string

const (
	SourceCustomerBuyback SourceKind = "customer_buyback"
	SourceSupplier        SourceKind = "supplier"
	SourceManual          SourceKind = "manual"
)

// LotSource records where stock came from.
type LotSource struct {
	Kind           SourceKind
	CounterpartyID CounterpartyID
	Reference      string // application number or supplier document
}

// InventoryLot is one SKU: product, rank, variant, unit cost and source.
//
// INVARIANT: when Tracked, Quantity == len(ManagementNumbers).
// Quantity is only changed through the inventory ledger; every change has a
// matching HistoryEntry.
type InventoryLot struct {
	ID                LotID
	ProductID         ProductID
	ProductCode       string
	Rank              Rank
	Color             string
	Quantity          int
	UnitCost          Money
	Source            LotSource
	Tracked           bool
	ManagementNumbers []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DepletedAt        *time.Time
	Version           int64
}

// Active reports whether the lot still holds stock.
func (l InventoryLot) Active() bool { return l.Quantity > 0 }

// Consistent checks the management-number invariant.
func (l InventoryLot) Consistent() bool {
	if l.Quantity < 0 {
		return false
	}
	return !l.Tracked || l.Quantity == len(l.ManagementNumbers)
}

// MergeKey identifies lots that may be merged on intake.
type MergeKey struct {
	ProductID      ProductID
	Rank           Rank
	Color          string
	UnitCost       Money
	SourceKind     SourceKind
	CounterpartyID CounterpartyID
}

func (l InventoryLot) MergeKey() MergeKey {
	return MergeKey{
		ProductID:      l.ProductID,
		Rank:           l.Rank,
		Color:          l.Color,
		UnitCost:       l.UnitCost,
		SourceKind:     l.Source.Kind,
		CounterpartyID: l.Source.CounterpartyID,
	}
}

// Clone returns a copy that shares no slices with l.
func (l InventoryLot) Clone() InventoryLot {
	c := l
	c.ManagementNumbers = slices.Clone(l.ManagementNumbers)
	if l.DepletedAt != nil {
		t := *l.DepletedAt
		c.DepletedAt = &t
	}
	return c
}

// =============================================================================
// HISTORY ENTRY - Immutable quantity change
// =============================================================================

type HistoryKind string

const (
	HistoryCreate  HistoryKind = "create"
	HistoryMerge   HistoryKind = "merge"
	HistoryDeplete HistoryKind = "deplete"
)

type ReferenceKind string

const (
	RefBuyback ReferenceKind = "buyback"
	RefSales   ReferenceKind = "sales"
	RefManual  ReferenceKind = "manual"
	RefSync    ReferenceKind = "sync"
)

// Reference points at the transaction that caused a change.
type Reference struct {
	Kind ReferenceKind
	ID   string
}

// HistoryEntry is append-only. Never edited, never deleted.
type HistoryEntry struct {
	ID                HistoryID
	LotID             LotID
	Kind              HistoryKind
	Delta             int
	Before            int
	After             int
	At                time.Time
	Actor             string
	Reason            string
	Reference         Reference
	ManagementNumbers []string // units that moved with this entry
	UnitCost          Money
	IdempotencyKey    string
}

// =============================================================================
// LOT FILTER
// =============================================================================

// LotFilter narrows ListLots. Zero values match everything.
type LotFilter struct {
	ProductID       ProductID
	IncludeDepleted bool
}
