package core

import (
	"cmp"
	"slices"
	"time"
)

// =============================================================================
// PRICE TABLES
// =============================================================================

// PriceDirection selects which table a price comes from.
type PriceDirection string

const (
	PriceBuyback PriceDirection = "buyback" // paid to customers
	PriceResale  PriceDirection = "resale"  // charged to buyers
)

func (d PriceDirection) Valid() bool {
	return d == PriceBuyback || d == PriceResale
}

// PriceEntry is one cell of a price table.
type PriceEntry struct {
	Direction   PriceDirection
	ProductCode string
	Rank        Rank
	Price       Money
	UpdatedAt   time.Time
}

// PriceTable maps product code → rank → base price for one direction.
type PriceTable struct {
	Direction PriceDirection
	Prices    map[string]map[Rank]Money
}

func NewPriceTable(dir PriceDirection) PriceTable {
	return PriceTable{Direction: dir, Prices: make(map[string]map[Rank]Money)}
}

func (t PriceTable) Set(code string, rank Rank, price Money) {
	row, ok := t.Prices[code]
	if !ok {
		row = make(map[Rank]Money)
		t.Prices[code] = row
	}
	row[rank] = price
}

func (t PriceTable) Get(code string, rank Rank) (Money, bool) {
	p, ok := t.Prices[code][rank]
	return p, ok
}

// Entries flattens the table, ordered by product code then rank like
// ListPrices.
func (t PriceTable) Entries() []PriceEntry {
	var out []PriceEntry
	for code, row := range t.Prices {
		for rank, price := range row {
			out = append(out, PriceEntry{Direction: t.Direction, ProductCode: code, Rank: rank, Price: price})
		}
	}
	slices.SortFunc(out, func(a, b PriceEntry) int {
		return cmp.Or(cmp.Compare(a.ProductCode, b.ProductCode), cmp.Compare(a.Rank, b.Rank))
	})
	return out
}

// =============================================================================
// PRICE ADJUSTMENTS
// =============================================================================

type AdjustmentKind string

const (
	AdjustPercentage AdjustmentKind = "percentage"
	AdjustFixed      AdjustmentKind = "fixed"
)

func (k AdjustmentKind) Valid() bool {
	return k == AdjustPercentage || k == AdjustFixed
}

// PriceAdjustment overrides the base price for one counterparty and product
// code. At most one exists per (CounterpartyID, ProductCode).
type PriceAdjustment struct {
	CounterpartyID CounterpartyID
	ProductCode    string
	Kind           AdjustmentKind
	Value          int64 // whole percent for percentage, money for fixed
	RankScope      *Rank // nil applies to every rank
	UpdatedAt      time.Time
	UpdatedBy      string
}

// AppliesTo reports whether the adjustment covers rank.
func (a PriceAdjustment) AppliesTo(rank Rank) bool {
	return a.RankScope == nil || *a.RankScope == rank
}
