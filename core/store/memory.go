// Package store provides an in-memory core.Store.
package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/warp/console-buyback/core"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every collection in maps guarded by one mutex. WithTx holds
// the mutex for the whole unit and restores a snapshot when fn fails.
type Memory struct {
	mu sync.Mutex
	st *state
}

type priceKey struct {
	Dir  core.PriceDirection
	Code string
	Rank core.Rank
}

type adjustmentKey struct {
	Counterparty core.CounterpartyID
	Code         string
}

type state struct {
	products       map[core.ProductID]core.Product
	counterparties map[core.CounterpartyID]core.Counterparty
	prices         map[priceKey]core.PriceEntry
	adjustments    map[adjustmentKey]core.PriceAdjustment
	lots           map[core.LotID]core.InventoryLot
	history        []core.HistoryEntry
	idempotency    map[string]bool
	applications   map[core.ApplicationNumber]core.BuybackApplication
	requests       map[core.RequestNumber]core.SalesRequest
	sequences      map[string]int64
}

func newState() *state {
	return &state{
		products:       make(map[core.ProductID]core.Product),
		counterparties: make(map[core.CounterpartyID]core.Counterparty),
		prices:         make(map[priceKey]core.PriceEntry),
		adjustments:    make(map[adjustmentKey]core.PriceAdjustment),
		lots:           make(map[core.LotID]core.InventoryLot),
		idempotency:    make(map[string]bool),
		applications:   make(map[core.ApplicationNumber]core.BuybackApplication),
		requests:       make(map[core.RequestNumber]core.SalesRequest),
		sequences:      make(map[string]int64),
	}
}

// snapshot deep-copies the state so a failed unit can be restored.
func (s *state) snapshot() *state {
	c := &state{
		products:       maps.Clone(s.products),
		counterparties: maps.Clone(s.counterparties),
		prices:         maps.Clone(s.prices),
		adjustments:    maps.Clone(s.adjustments),
		lots:           make(map[core.LotID]core.InventoryLot, len(s.lots)),
		history:        slices.Clone(s.history),
		idempotency:    maps.Clone(s.idempotency),
		applications:   make(map[core.ApplicationNumber]core.BuybackApplication, len(s.applications)),
		requests:       make(map[core.RequestNumber]core.SalesRequest, len(s.requests)),
		sequences:      maps.Clone(s.sequences),
	}
	for k, v := range s.lots {
		c.lots[k] = v.Clone()
	}
	for k, v := range s.applications {
		c.applications[k] = v.Clone()
	}
	for k, v := range s.requests {
		c.requests[k] = v.Clone()
	}
	return c
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

var _ core.Store = (*Memory)(nil)

// WithTx executes fn within a unit. Writes go straight to the live maps and
// are undone from the snapshot on error.
func (m *Memory) WithTx(ctx context.Context, fn func(core.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.st.snapshot()
	if err := fn(&view{st: m.st}); err != nil {
		m.st = snap
		return err
	}
	return nil
}

// locked runs fn against the live state under the mutex.
func (m *Memory) locked(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{st: m.st})
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (m *Memory) GetProduct(ctx context.Context, id core.ProductID) (p core.Product, err error) {
	err = m.locked(func(v *view) error { p, err = v.GetProduct(ctx, id); return err })
	return p, err
}

func (m *Memory) ListProducts(ctx context.Context) (out []core.Product, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListProducts(ctx); return err })
	return out, err
}

func (m *Memory) PutProduct(ctx context.Context, p *core.Product) error {
	return m.locked(func(v *view) error { return v.PutProduct(ctx, p) })
}

func (m *Memory) GetCounterparty(ctx context.Context, id core.CounterpartyID) (c core.Counterparty, err error) {
	err = m.locked(func(v *view) error { c, err = v.GetCounterparty(ctx, id); return err })
	return c, err
}

func (m *Memory) ListCounterparties(ctx context.Context) (out []core.Counterparty, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListCounterparties(ctx); return err })
	return out, err
}

func (m *Memory) PutCounterparty(ctx context.Context, c *core.Counterparty) error {
	return m.locked(func(v *view) error { return v.PutCounterparty(ctx, c) })
}

func (m *Memory) GetPrice(ctx context.Context, dir core.PriceDirection, code string, rank core.Rank) (p core.Money, ok bool, err error) {
	err = m.locked(func(v *view) error { p, ok, err = v.GetPrice(ctx, dir, code, rank); return err })
	return p, ok, err
}

func (m *Memory) ListPrices(ctx context.Context, dir core.PriceDirection) (out []core.PriceEntry, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListPrices(ctx, dir); return err })
	return out, err
}

func (m *Memory) PutPrice(ctx context.Context, entry core.PriceEntry) error {
	return m.locked(func(v *view) error { return v.PutPrice(ctx, entry) })
}

func (m *Memory) GetAdjustment(ctx context.Context, cp core.CounterpartyID, code string) (a *core.PriceAdjustment, err error) {
	err = m.locked(func(v *view) error { a, err = v.GetAdjustment(ctx, cp, code); return err })
	return a, err
}

func (m *Memory) ListAdjustments(ctx context.Context, cp core.CounterpartyID) (out []core.PriceAdjustment, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListAdjustments(ctx, cp); return err })
	return out, err
}

func (m *Memory) PutAdjustment(ctx context.Context, adj core.PriceAdjustment) error {
	return m.locked(func(v *view) error { return v.PutAdjustment(ctx, adj) })
}

func (m *Memory) DeleteAdjustment(ctx context.Context, cp core.CounterpartyID, code string) error {
	return m.locked(func(v *view) error { return v.DeleteAdjustment(ctx, cp, code) })
}

func (m *Memory) GetLot(ctx context.Context, id core.LotID) (l core.InventoryLot, err error) {
	err = m.locked(func(v *view) error { l, err = v.GetLot(ctx, id); return err })
	return l, err
}

func (m *Memory) ListLots(ctx context.Context, f core.LotFilter) (out []core.InventoryLot, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListLots(ctx, f); return err })
	return out, err
}

func (m *Memory) PutLot(ctx context.Context, lot *core.InventoryLot) error {
	return m.locked(func(v *view) error { return v.PutLot(ctx, lot) })
}

func (m *Memory) AppendHistory(ctx context.Context, e core.HistoryEntry) error {
	return m.locked(func(v *view) error { return v.AppendHistory(ctx, e) })
}

func (m *Memory) LotHistory(ctx context.Context, id core.LotID) (out []core.HistoryEntry, err error) {
	err = m.locked(func(v *view) error { out, err = v.LotHistory(ctx, id); return err })
	return out, err
}

func (m *Memory) ListHistory(ctx context.Context) (out []core.HistoryEntry, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListHistory(ctx); return err })
	return out, err
}

func (m *Memory) GetApplication(ctx context.Context, n core.ApplicationNumber) (a core.BuybackApplication, err error) {
	err = m.locked(func(v *view) error { a, err = v.GetApplication(ctx, n); return err })
	return a, err
}

func (m *Memory) ListApplications(ctx context.Context, f core.BuybackFilter) (out []core.BuybackApplication, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListApplications(ctx, f); return err })
	return out, err
}

func (m *Memory) PutApplication(ctx context.Context, a *core.BuybackApplication) error {
	return m.locked(func(v *view) error { return v.PutApplication(ctx, a) })
}

func (m *Memory) GetSalesRequest(ctx context.Context, n core.RequestNumber) (r core.SalesRequest, err error) {
	err = m.locked(func(v *view) error { r, err = v.GetSalesRequest(ctx, n); return err })
	return r, err
}

func (m *Memory) ListSalesRequests(ctx context.Context, f core.SalesFilter) (out []core.SalesRequest, err error) {
	err = m.locked(func(v *view) error { out, err = v.ListSalesRequests(ctx, f); return err })
	return out, err
}

func (m *Memory) PutSalesRequest(ctx context.Context, r *core.SalesRequest) error {
	return m.locked(func(v *view) error { return v.PutSalesRequest(ctx, r) })
}

func (m *Memory) NextSequence(ctx context.Context, scope string, n int) (first int64, err error) {
	err = m.locked(func(v *view) error { first, err = v.NextSequence(ctx, scope, n); return err })
	return first, err
}

// =============================================================================
// VIEW - Unlocked operations; the caller holds Memory.mu
// =============================================================================

type view struct {
	st *state
}

var _ core.Store = (*view)(nil)

// WithTx on a view joins the enclosing unit.
func (v *view) WithTx(_ context.Context, fn func(core.Store) error) error {
	return fn(v)
}

func checkVersion(exists bool, stored, given int64) error {
	if !exists && given != 0 {
		return core.ErrConcurrentModification
	}
	if exists && stored != given {
		return core.ErrConcurrentModification
	}
	return nil
}

func (v *view) GetProduct(_ context.Context, id core.ProductID) (core.Product, error) {
	p, ok := v.st.products[id]
	if !ok {
		return core.Product{}, core.NotFound("product", id)
	}
	return p, nil
}

func (v *view) ListProducts(_ context.Context) ([]core.Product, error) {
	out := slices.Collect(maps.Values(v.st.products))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) PutProduct(_ context.Context, p *core.Product) error {
	cur, ok := v.st.products[p.ID]
	if err := checkVersion(ok, cur.Version, p.Version); err != nil {
		return err
	}
	p.Version++
	v.st.products[p.ID] = *p
	return nil
}

func (v *view) GetCounterparty(_ context.Context, id core.CounterpartyID) (core.Counterparty, error) {
	c, ok := v.st.counterparties[id]
	if !ok {
		return core.Counterparty{}, core.NotFound("counterparty", id)
	}
	return c, nil
}

func (v *view) ListCounterparties(_ context.Context) ([]core.Counterparty, error) {
	out := slices.Collect(maps.Values(v.st.counterparties))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) PutCounterparty(_ context.Context, c *core.Counterparty) error {
	cur, ok := v.st.counterparties[c.ID]
	if err := checkVersion(ok, cur.Version, c.Version); err != nil {
		return err
	}
	c.Version++
	v.st.counterparties[c.ID] = *c
	return nil
}

func (v *view) GetPrice(_ context.Context, dir core.PriceDirection, code string, rank core.Rank) (core.Money, bool, error) {
	e, ok := v.st.prices[priceKey{Dir: dir, Code: code, Rank: rank}]
	return e.Price, ok, nil
}

func (v *view) ListPrices(_ context.Context, dir core.PriceDirection) ([]core.PriceEntry, error) {
	var out []core.PriceEntry
	for k, e := range v.st.prices {
		if k.Dir == dir {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductCode != out[j].ProductCode {
			return out[i].ProductCode < out[j].ProductCode
		}
		return out[i].Rank < out[j].Rank
	})
	return out, nil
}

func (v *view) PutPrice(_ context.Context, e core.PriceEntry) error {
	v.st.prices[priceKey{Dir: e.Direction, Code: e.ProductCode, Rank: e.Rank}] = e
	return nil
}

func (v *view) GetAdjustment(_ context.Context, cp core.CounterpartyID, code string) (*core.PriceAdjustment, error) {
	a, ok := v.st.adjustments[adjustmentKey{Counterparty: cp, Code: code}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (v *view) ListAdjustments(_ context.Context, cp core.CounterpartyID) ([]core.PriceAdjustment, error) {
	var out []core.PriceAdjustment
	for k, a := range v.st.adjustments {
		if cp == "" || k.Counterparty == cp {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CounterpartyID != out[j].CounterpartyID {
			return out[i].CounterpartyID < out[j].CounterpartyID
		}
		return out[i].ProductCode < out[j].ProductCode
	})
	return out, nil
}

func (v *view) PutAdjustment(_ context.Context, a core.PriceAdjustment) error {
	v.st.adjustments[adjustmentKey{Counterparty: a.CounterpartyID, Code: a.ProductCode}] = a
	return nil
}

func (v *view) DeleteAdjustment(_ context.Context, cp core.CounterpartyID, code string) error {
	delete(v.st.adjustments, adjustmentKey{Counterparty: cp, Code: code})
	return nil
}

func (v *view) GetLot(_ context.Context, id core.LotID) (core.InventoryLot, error) {
	l, ok := v.st.lots[id]
	if !ok {
		return core.InventoryLot{}, core.NotFound("lot", id)
	}
	return l.Clone(), nil
}

func (v *view) ListLots(_ context.Context, f core.LotFilter) ([]core.InventoryLot, error) {
	var out []core.InventoryLot
	for _, l := range v.st.lots {
		if f.ProductID != "" && l.ProductID != f.ProductID {
			continue
		}
		if !f.IncludeDepleted && !l.Active() {
			continue
		}
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) PutLot(_ context.Context, lot *core.InventoryLot) error {
	cur, ok := v.st.lots[lot.ID]
	if err := checkVersion(ok, cur.Version, lot.Version); err != nil {
		return err
	}
	lot.Version++
	v.st.lots[lot.ID] = lot.Clone()
	return nil
}

func (v *view) AppendHistory(_ context.Context, e core.HistoryEntry) error {
	if e.IdempotencyKey != "" {
		if v.st.idempotency[e.IdempotencyKey] {
			return core.ErrDuplicateIdempotencyKey
		}
		v.st.idempotency[e.IdempotencyKey] = true
	}
	e.ManagementNumbers = slices.Clone(e.ManagementNumbers)
	v.st.history = append(v.st.history, e)
	return nil
}

func (v *view) LotHistory(_ context.Context, id core.LotID) ([]core.HistoryEntry, error) {
	var out []core.HistoryEntry
	for _, e := range v.st.history {
		if e.LotID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *view) ListHistory(_ context.Context) ([]core.HistoryEntry, error) {
	return slices.Clone(v.st.history), nil
}

func (v *view) GetApplication(_ context.Context, n core.ApplicationNumber) (core.BuybackApplication, error) {
	a, ok := v.st.applications[n]
	if !ok {
		return core.BuybackApplication{}, core.NotFound("buyback application", n)
	}
	return a.Clone(), nil
}

func (v *view) ListApplications(_ context.Context, f core.BuybackFilter) ([]core.BuybackApplication, error) {
	var out []core.BuybackApplication
	for _, a := range v.st.applications {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.CustomerID != "" && a.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (v *view) PutApplication(_ context.Context, a *core.BuybackApplication) error {
	cur, ok := v.st.applications[a.Number]
	if err := checkVersion(ok, cur.Version, a.Version); err != nil {
		return err
	}
	a.Version++
	v.st.applications[a.Number] = a.Clone()
	return nil
}

func (v *view) GetSalesRequest(_ context.Context, n core.RequestNumber) (core.SalesRequest, error) {
	r, ok := v.st.requests[n]
	if !ok {
		return core.SalesRequest{}, core.NotFound("sales request", n)
	}
	return r.Clone(), nil
}

func (v *view) ListSalesRequests(_ context.Context, f core.SalesFilter) ([]core.SalesRequest, error) {
	var out []core.SalesRequest
	for _, r := range v.st.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.CounterpartyID != "" && r.CounterpartyID != f.CounterpartyID {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (v *view) PutSalesRequest(_ context.Context, r *core.SalesRequest) error {
	cur, ok := v.st.requests[r.Number]
	if err := checkVersion(ok, cur.Version, r.Version); err != nil {
		return err
	}
	r.Version++
	v.st.requests[r.Number] = r.Clone()
	return nil
}

func (v *view) NextSequence(_ context.Context, scope string, n int) (int64, error) {
	if n < 1 {
		n = 1
	}
	first := v.st.sequences[scope] + 1
	v.st.sequences[scope] += int64(n)
	return first, nil
}
