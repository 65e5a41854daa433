/*
store.go - Persistence interfaces for every collection

PURPOSE:
  Defines the boundary between the engine and its storage. Components depend
  on these typed repositories, never on a concrete database.

KEY INTERFACES:
  CatalogStore:  products and counterparties
  PriceStore:    base price tables and per-counterparty adjustments
  LotStore:      inventory lots plus the append-only history
  BuybackStore:  buyback applications
  SalesStore:    sales requests
  SequenceStore: monotonic counters (document numbers, management numbers)
  Store:         all of the above plus WithTx

VERSIONED PUTS:
  Mutable rows carry a Version. Put* compares it with the stored version:
  - Version 0 means "create"; the row must not exist yet
  - otherwise the stored version must equal the caller's
  On success the caller's Version is incremented. A mismatch returns
  ErrConcurrentModification, so a background refresh holding an old snapshot
  can never overwrite a newer write.

APPEND-ONLY HISTORY:
  AppendHistory is the only write on inventory history. Entries with an
  IdempotencyKey are unique; a replay returns ErrDuplicateIdempotencyKey.

ATOMIC UNITS:
  WithTx runs fn against a transactional view. If fn returns an error every
  write made through the view is discarded. Nested WithTx calls on the view
  join the outer unit.

IMPLEMENTATIONS:
  - core/store/memory.go: in-memory, snapshot + rollback
  - store/sqlite/sqlite.go: SQLite via database/sql
*/
package core

import (
	"context"
	"time"
)

type CatalogStore interface {
	GetProduct(ctx context.Context, id ProductID) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	PutProduct(ctx context.Context, p *Product) error

	GetCounterparty(ctx context.Context, id CounterpartyID) (Counterparty, error)
	ListCounterparties(ctx context.Context) ([]Counterparty, error)
	PutCounterparty(ctx context.Context, c *Counterparty) error
}

type PriceStore interface {
	// GetPrice returns the base price and whether the cell exists.
	GetPrice(ctx context.Context, dir PriceDirection, code string, rank Rank) (Money, bool, error)
	ListPrices(ctx context.Context, dir PriceDirection) ([]PriceEntry, error)
	PutPrice(ctx context.Context, entry PriceEntry) error

	// GetAdjustment returns nil and no error when no adjustment exists.
	GetAdjustment(ctx context.Context, cp CounterpartyID, code string) (*PriceAdjustment, error)
	// ListAdjustments lists adjustments for cp, or all when cp is empty.
	ListAdjustments(ctx context.Context, cp CounterpartyID) ([]PriceAdjustment, error)
	// PutAdjustment overwrites any adjustment with the same key.
	PutAdjustment(ctx context.Context, adj PriceAdjustment) error
	DeleteAdjustment(ctx context.Context, cp CounterpartyID, code string) error
}

type LotStore interface {
	GetLot(ctx context.Context, id LotID) (InventoryLot, error)
	ListLots(ctx context.Context, filter LotFilter) ([]InventoryLot, error)
	PutLot(ctx context.Context, lot *InventoryLot) error

	AppendHistory(ctx context.Context, entry HistoryEntry) error
	// LotHistory returns entries for a lot, oldest first.
	LotHistory(ctx context.Context, id LotID) ([]HistoryEntry, error)
	// ListHistory returns every entry, oldest first.
	ListHistory(ctx context.Context) ([]HistoryEntry, error)
}

type BuybackStore interface {
	GetApplication(ctx context.Context, number ApplicationNumber) (BuybackApplication, error)
	ListApplications(ctx context.Context, filter BuybackFilter) ([]BuybackApplication, error)
	PutApplication(ctx context.Context, app *BuybackApplication) error
}

type SalesStore interface {
	GetSalesRequest(ctx context.Context, number RequestNumber) (SalesRequest, error)
	ListSalesRequests(ctx context.Context, filter SalesFilter) ([]SalesRequest, error)
	PutSalesRequest(ctx context.Context, req *SalesRequest) error
}

type SequenceStore interface {
	// NextSequence reserves n consecutive values in scope and returns the first.
	NextSequence(ctx context.Context, scope string, n int) (int64, error)
}

// Store is the full repository surface.
type Store interface {
	CatalogStore
	PriceStore
	LotStore
	BuybackStore
	SalesStore
	SequenceStore

	// WithTx executes fn within an atomic unit.
	// If fn returns error, every write is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock returns the current time. Components take one so tests can pin dates.
type Clock func() time.Time

// SystemClock is the UTC wall clock.
func SystemClock() time.Time { return time.Now().UTC() }

// Now calls c, falling back to SystemClock when c is nil.
func (c Clock) Now() time.Time {
	if c == nil {
		return SystemClock()
	}
	return c()
}
