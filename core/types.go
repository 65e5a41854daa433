/*
Package core holds the entity types, error taxonomy and repository contracts
shared by every component of the buyback/resale engine.

PURPOSE:
  The workflow packages (buyback, sales), the inventory ledger, the pricing
  engine and the compliance ledger all speak in these types. Persistence
  implementations (core/store, store/sqlite) only know about this package,
  which keeps the dependency graph a tree:

    identifier, pricing ──▶ core ◀── inventory ◀── buyback, sales
                                 ◀── compliance
                                 ◀── core/store, store/sqlite

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: integer amount in the smallest currency unit (yen)
  - Rank: condition rank S > A > B > C
  - Product: immutable catalog entry carrying a product code
  - Counterparty: customer, buyer or supplier identity (compliance input)

DESIGN PRINCIPLES:
  1. Typed identifiers: a LotID can't be passed where a ProductID is expected
  2. Integer money: prices never go through floating point
  3. Versioned rows: every mutable entity carries a Version for stale-write checks

SEE ALSO:
  - inventory.go: InventoryLot and HistoryEntry
  - buyback.go / sales.go: workflow aggregates
  - store.go: repository interfaces
  - errors.go: error taxonomy
*/
package core

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is an amount in the smallest currency unit.
type Money int64

func (m Money) Mul(qty int) Money { return m * Money(qty) }
func (m Money) IsPositive() bool  { return m > 0 }
func (m Money) IsNegative() bool  { return m < 0 }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID string
type CounterpartyID string
type LotID string
type HistoryID string
type ItemID string
type ApplicationNumber string
type RequestNumber string

// =============================================================================
// CATALOG
// =============================================================================

type Manufacturer string

const (
	ManufacturerNintendo  Manufacturer = "nintendo"
	ManufacturerSony      Manufacturer = "sony"
	ManufacturerMicrosoft Manufacturer = "microsoft"
	ManufacturerOther     Manufacturer = "other"
)

// ParseManufacturer accepts the lowercase key or the brand name in any case.
// Anything unrecognised maps to ManufacturerOther.
func ParseManufacturer(s string) Manufacturer {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nintendo":
		return ManufacturerNintendo
	case "sony", "sie", "sony interactive entertainment":
		return ManufacturerSony
	case "microsoft", "xbox":
		return ManufacturerMicrosoft
	default:
		return ManufacturerOther
	}
}

type ProductType string

const (
	ProductHardware ProductType = "hardware"
	ProductSoftware ProductType = "software"
)

func (t ProductType) Valid() bool {
	return t == ProductHardware || t == ProductSoftware
}

// Product is a catalog entry. Edits produce a new Version; a product code can
// not change while stock references it.
type Product struct {
	ID                ProductID
	Manufacturer      Manufacturer
	Model             string
	Name              string
	Type              ProductType
	ReleaseYear       int
	Code              string
	ModelCodeOverride string // two digits when the catalog pins a model code
	Version           int64
	UpdatedAt         time.Time
}

// =============================================================================
// RANK - Condition grade, best to worst
// =============================================================================

type Rank string

const (
	RankS Rank = "S"
	RankA Rank = "A"
	RankB Rank = "B"
	RankC Rank = "C"
)

// AllRanks lists ranks best-first.
var AllRanks = []Rank{RankS, RankA, RankB, RankC}

func (r Rank) Valid() bool { return r.order() >= 0 }

func (r Rank) order() int {
	switch r {
	case RankS:
		return 0
	case RankA:
		return 1
	case RankB:
		return 2
	case RankC:
		return 3
	}
	return -1
}

// Better reports whether r is a strictly better condition than other.
func (r Rank) Better(other Rank) bool {
	return r.Valid() && other.Valid() && r.order() < other.order()
}

func ParseRank(s string) (Rank, error) {
	r := Rank(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown rank %q", s)
	}
	return r, nil
}

// =============================================================================
// COUNTERPARTY
// =============================================================================

type CounterpartyKind string

const (
	CounterpartyCustomer CounterpartyKind = "customer"
	CounterpartyBuyer    CounterpartyKind = "buyer"
	CounterpartySupplier CounterpartyKind = "supplier"
)

// Counterparty is anyone stock is bought from or sold to. Address, occupation
// and birth date are required on acquisition records.
type Counterparty struct {
	ID         CounterpartyID
	Kind       CounterpartyKind
	Name       string
	NameKana   string // reading, preferred for code derivation when present
	Address    string
	Occupation string
	BirthDate  time.Time
	Country    string
	Version    int64
}

// AgeAt returns completed years at t, or 0 when no birth date is on file.
func (c Counterparty) AgeAt(t time.Time) int {
	if c.BirthDate.IsZero() || t.Before(c.BirthDate) {
		return 0
	}
	age := t.Year() - c.BirthDate.Year()
	if t.Month() < c.BirthDate.Month() ||
		(t.Month() == c.BirthDate.Month() && t.Day() < c.BirthDate.Day()) {
		age--
	}
	return age
}

// CodeName returns the name used to derive counterparty codes.
func (c Counterparty) CodeName() string {
	if c.NameKana != "" {
		return c.NameKana
	}
	return c.Name
}
