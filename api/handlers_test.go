/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Catalog CRUD, versioning and validation details
- Price sheet import, tables and quotes
- Buyback workflow end to end over HTTP
- Sales fulfilment, allocation errors and margin
- Error mapping (400/404/409/422)
- Scenarios, auto-commit scheduler, metrics middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/console-buyback/buyback"
	"github.com/warp/console-buyback/catalog"
	"github.com/warp/console-buyback/compliance"
	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/core/store"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/inventory"
	"github.com/warp/console-buyback/metrics"
	"github.com/warp/console-buyback/pricing"
	"github.com/warp/console-buyback/sales"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march10 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	t       *testing.T
	handler *Handler
	router  http.Handler
	metrics *metrics.Collector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvOn(t, store.NewMemory())
}

// newTestEnvOn wires every service over s with a fixed clock.
func newTestEnvOn(t *testing.T, s core.Store) *testEnv {
	t.Helper()
	bus := events.NewBus(nil)
	clock := core.Clock(func() time.Time { return march10 })

	engine := pricing.NewEngine(s, pricing.Options{Publisher: bus, Clock: clock})
	ledger := inventory.NewLedger(s, inventory.Options{Publisher: bus, Clock: clock})
	salesSvc := sales.NewService(s, engine, ledger, sales.Options{Publisher: bus, Clock: clock})
	sales.NewRequoter(salesSvc).Attach(bus)

	h := NewHandler(Services{
		Catalog:    catalog.NewService(s, nil, clock),
		Pricing:    engine,
		Inventory:  ledger,
		Buyback:    buyback.NewService(s, engine, ledger, buyback.Options{SelfShipBonus: 500, Publisher: bus, Clock: clock}),
		Sales:      salesSvc,
		Compliance: compliance.NewLedger(s),
	}, nil, clock)
	h.Scheduler = NewAutoCommitScheduler(h.Buyback, nil)

	m := metrics.New()
	m.Attach(bus)
	return &testEnv{
		t:       t,
		handler: h,
		metrics: m,
		router:  NewRouter(h, RouterOptions{Metrics: m, MaxBodySize: 1 << 20, EnableScenarios: true}),
	}
}

// do sends body as JSON; a string body is sent verbatim.
func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(e.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}

func (e *testEnv) loadScenario(id string) LoadScenarioResponse {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenarioId": id})
	requireStatus(e.t, rec, http.StatusCreated)
	return decodeAs[LoadScenarioResponse](e.t, rec)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/healthz", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProducts_CreateGetUpdate(t *testing.T) {
	// GIVEN: An empty catalog
	e := newTestEnv(t)

	// WHEN: A product is created without a code
	rec := e.do(http.MethodPost, "/api/products", PutProductRequest{
		ID: "switch", Manufacturer: "Nintendo", Model: "Switch", Name: "Nintendo Switch", Type: "hardware",
	})

	// THEN: It is stored at version 1 with a derived code
	requireStatus(t, rec, http.StatusCreated)
	created := decodeAs[ProductDTO](t, rec)
	assert.Equal(t, int64(1), created.Version)
	assert.NotEmpty(t, created.Code)

	rec = e.do(http.MethodGet, "/api/products/switch", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "Nintendo Switch", decodeAs[ProductDTO](t, rec).Name)

	// WHEN: Updated with the current version
	rec = e.do(http.MethodPut, "/api/products/switch", PutProductRequest{
		Manufacturer: "Nintendo", Model: "Switch", Name: "Switch (2017)", Type: "hardware", Version: 1,
	})
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, int64(2), decodeAs[ProductDTO](t, rec).Version)

	// THEN: A stale version conflicts
	rec = e.do(http.MethodPut, "/api/products/switch", PutProductRequest{
		Manufacturer: "Nintendo", Model: "Switch", Name: "stale", Type: "hardware", Version: 1,
	})
	requireStatus(t, rec, http.StatusConflict)
	assert.Equal(t, "concurrent_modification", decodeAs[ErrorResponse](t, rec).Code)
}

func TestProducts_NotFoundAndValidation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/api/products/missing", nil)
	requireStatus(t, rec, http.StatusNotFound)
	assert.Equal(t, "not_found", decodeAs[ErrorResponse](t, rec).Code)

	rec = e.do(http.MethodPost, "/api/products", map[string]any{"id": "x", "type": "console"})
	requireStatus(t, rec, http.StatusBadRequest)
	resp := decodeAs[ErrorResponse](t, rec)
	fields := make([]string, len(resp.Items))
	for i, it := range resp.Items {
		fields[i] = it.Field
	}
	assert.ElementsMatch(t, []string{"name", "type"}, fields)

	rec = e.do(http.MethodPost, "/api/products", "{not json")
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestCounterparties_CustomerNeedsIdentity(t *testing.T) {
	// GIVEN: A customer without address, occupation or birth date
	e := newTestEnv(t)

	// WHEN: It is created
	rec := e.do(http.MethodPost, "/api/counterparties", PutCounterpartyRequest{
		ID: "cust-1", Kind: "customer", Name: "山田太郎",
	})

	// THEN: Every missing field is listed
	requireStatus(t, rec, http.StatusBadRequest)
	resp := decodeAs[ErrorResponse](t, rec)
	var fields []string
	for _, it := range resp.Items {
		fields = append(fields, it.Field)
	}
	assert.ElementsMatch(t, []string{"address", "occupation", "birthDate"}, fields)

	// WHEN: Completed
	rec = e.do(http.MethodPost, "/api/counterparties", PutCounterpartyRequest{
		ID: "cust-1", Kind: "customer", Name: "山田太郎", Address: "東京都", Occupation: "会社員", BirthDate: "1985-04-12",
	})
	requireStatus(t, rec, http.StatusCreated)
	assert.Equal(t, "1985-04-12", decodeAs[CounterpartyDTO](t, rec).BirthDate)

	rec = e.do(http.MethodGet, "/api/counterparties?kind=buyer", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Empty(t, decodeAs[[]CounterpartyDTO](t, rec))
}

func TestImportProducts(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/api/products/import", demoCatalog)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, 3, decodeAs[ImportResponse](t, rec).Imported)

	rec = e.do(http.MethodGet, "/api/products", nil)
	assert.Len(t, decodeAs[[]ProductDTO](t, rec), 3)
}

// =============================================================================
// PRICES
// =============================================================================

func TestPrices_ImportTableAndQuote(t *testing.T) {
	// GIVEN: The resale sheet with a -5% adjustment for the overseas buyer
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/api/prices/import?actor=staff-1", demoResaleSheet)
	requireStatus(t, rec, http.StatusOK)

	// THEN: The table is readable
	rec = e.do(http.MethodGet, "/api/prices/resale", nil)
	requireStatus(t, rec, http.StatusOK)
	table := decodeAs[PriceTableDTO](t, rec)
	assert.Equal(t, int64(30000), table.Prices["N01"]["A"])

	// WHEN: Quoting for the adjusted buyer
	rec = e.do(http.MethodGet, "/api/prices/quote?direction=resale&code=N01&rank=a&counterparty=buyer-overseas", nil)
	requireStatus(t, rec, http.StatusOK)
	quote := decodeAs[PriceQuoteDTO](t, rec)
	assert.Equal(t, int64(30000), quote.BasePrice)
	assert.Equal(t, int64(28500), quote.FinalPrice)
	require.NotNil(t, quote.Adjustment)
	assert.Equal(t, "staff-1", quote.Adjustment.UpdatedBy)

	// WHEN: Quoting a missing cell
	rec = e.do(http.MethodGet, "/api/prices/quote?direction=resale&code=NS&rank=C", nil)
	requireStatus(t, rec, http.StatusOK)
	quote = decodeAs[PriceQuoteDTO](t, rec)
	assert.Zero(t, quote.FinalPrice)
	assert.NotEmpty(t, quote.Reason)
}

func TestPrices_SetCellAndAdjustments(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPut, "/api/prices/buyback/N01/S", SetPriceRequest{Price: 22000})
	requireStatus(t, rec, http.StatusNoContent)
	rec = e.do(http.MethodPut, "/api/prices/sideways/N01/S", SetPriceRequest{Price: 1})
	requireStatus(t, rec, http.StatusBadRequest)
	rec = e.do(http.MethodPut, "/api/prices/buyback/N01/Z", SetPriceRequest{Price: 1})
	requireStatus(t, rec, http.StatusBadRequest)

	rec = e.do(http.MethodPut, "/api/adjustments", AdjustmentDTO{
		CounterpartyID: "buyer-1", ProductCode: "N01", Kind: "fixed", Value: -1500, Rank: "S",
	})
	requireStatus(t, rec, http.StatusOK)

	rec = e.do(http.MethodGet, "/api/adjustments?counterparty=buyer-1", nil)
	adjs := decodeAs[[]AdjustmentDTO](t, rec)
	require.Len(t, adjs, 1)
	assert.Equal(t, "S", adjs[0].Rank)

	rec = e.do(http.MethodDelete, "/api/adjustments/buyer-1/N01", nil)
	requireStatus(t, rec, http.StatusNoContent)
	rec = e.do(http.MethodGet, "/api/adjustments", nil)
	assert.Empty(t, decodeAs[[]AdjustmentDTO](t, rec))
}

// =============================================================================
// BUYBACK
// =============================================================================

func TestBuyback_FullFlowOverHTTP(t *testing.T) {
	// GIVEN: Catalog, customer and buyback prices
	e := newTestEnv(t)
	e.loadScenario("catalog")

	// WHEN: A self-ship application is submitted
	rec := e.do(http.MethodPost, "/api/buyback", map[string]any{
		"customerId":     "cust-yamada",
		"shippingMethod": "self_ship",
		"items": []map[string]any{
			{"productId": "switch", "hardware": map[string]any{"color": "red"}, "quantity": 2},
		},
	})
	requireStatus(t, rec, http.StatusCreated)
	app := decodeAs[ApplicationDTO](t, rec)
	assert.Equal(t, "applied", app.Status)
	base := "/api/buyback/" + app.Number

	// THEN: It can be received and assessed
	requireStatus(t, e.do(http.MethodPost, base+"/received", DateRequest{Date: "2025-03-11"}), http.StatusOK)
	requireStatus(t, e.do(http.MethodPost, base+"/assess", nil), http.StatusOK)

	rec = e.do(http.MethodPut, base+"/items/"+app.Items[0].ID+"/assessment", AssessItemRequest{Rank: "A"})
	requireStatus(t, rec, http.StatusOK)
	app = decodeAs[ApplicationDTO](t, rec)
	assert.Equal(t, int64(18000), app.Items[0].UnitPrice)
	assert.Equal(t, int64(18000), app.Items[0].SuggestedPrice)

	// WHEN: Confirmed without an assessor
	rec = e.do(http.MethodPost, base+"/confirm-assessment", nil)

	// THEN: The missing assessor is reported
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	resp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "incomplete_assessment", resp.Code)
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, "assessor", resp.Items[0].Field)

	rec = e.do(http.MethodPost, base+"/confirm-assessment", map[string]string{"assessor": "staff-1"})
	requireStatus(t, rec, http.StatusOK)
	app = decodeAs[ApplicationDTO](t, rec)
	assert.Equal(t, "awaiting_approval", app.Status)
	assert.Equal(t, int64(2*18000+500), app.TotalPayable)

	requireStatus(t, e.do(http.MethodPost, base+"/approve", nil), http.StatusOK)
	rec = e.do(http.MethodPost, base+"/commit", ActorRequest{Actor: "staff-1"})
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "in_inventory", decodeAs[ApplicationDTO](t, rec).Status)

	// THEN: Stock is numbered and the register shows both units
	rec = e.do(http.MethodGet, "/api/inventory/lots?product=switch", nil)
	lots := decodeAs[[]LotDTO](t, rec)
	require.Len(t, lots, 1)
	assert.Equal(t, 2, lots[0].Quantity)
	assert.True(t, lots[0].Tracked)
	assert.Len(t, lots[0].ManagementNumbers, 2)

	rec = e.do(http.MethodGet, "/api/compliance/records?type=acquisition&from=2025-03-10&to=2025-03-10", nil)
	requireStatus(t, rec, http.StatusOK)
	records := decodeAs[[]ComplianceRecordDTO](t, rec)
	require.Len(t, records, 2)
	assert.Equal(t, "山田太郎", records[0].CounterpartyName)

	// A second commit is an invalid transition
	rec = e.do(http.MethodPost, base+"/commit", ActorRequest{Actor: "staff-1"})
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	assert.Equal(t, "invalid_transition", decodeAs[ErrorResponse](t, rec).Code)
}

func TestBuyback_RankCNeedsNotesOverHTTP(t *testing.T) {
	// GIVEN: An application under assessment
	e := newTestEnv(t)
	e.loadScenario("catalog")
	rec := e.do(http.MethodPost, "/api/buyback", map[string]any{
		"customerId":     "cust-yamada",
		"shippingMethod": "self_ship",
		"items":          []map[string]any{{"productId": "switch", "quantity": 1}},
	})
	requireStatus(t, rec, http.StatusCreated)
	app := decodeAs[ApplicationDTO](t, rec)
	base := "/api/buyback/" + app.Number
	item := base + "/items/" + app.Items[0].ID + "/assessment"
	requireStatus(t, e.do(http.MethodPost, base+"/received", DateRequest{Date: "2025-03-11"}), http.StatusOK)
	requireStatus(t, e.do(http.MethodPost, base+"/assess", nil), http.StatusOK)

	// WHEN: Rank C is set without notes and confirmed
	requireStatus(t, e.do(http.MethodPut, item, AssessItemRequest{Rank: "C", UnitPrice: 5000}), http.StatusOK)
	rec = e.do(http.MethodPost, base+"/confirm-assessment", map[string]string{"assessor": "staff-1"})

	// THEN: The item's notes are reported missing
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	resp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "incomplete_assessment", resp.Code)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "conditionNotes", resp.Items[0].Field)
	assert.Equal(t, app.Items[0].ID, resp.Items[0].ItemID)

	// WHEN: The assessment is resent with notes
	rec = e.do(http.MethodPut, item, AssessItemRequest{Rank: "C", UnitPrice: 5000, ConditionNotes: "cracked shell"})
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "cracked shell", decodeAs[ApplicationDTO](t, rec).Items[0].ConditionNotes)

	// THEN: Confirmation succeeds
	rec = e.do(http.MethodPost, base+"/confirm-assessment", map[string]string{"assessor": "staff-1"})
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "awaiting_approval", decodeAs[ApplicationDTO](t, rec).Status)
}

func TestBuyback_SubmitValidation(t *testing.T) {
	e := newTestEnv(t)
	e.loadScenario("catalog")

	rec := e.do(http.MethodPost, "/api/buyback", map[string]any{
		"customerId":     "cust-yamada",
		"shippingMethod": "drone",
		"items":          []map[string]any{{"productId": "switch", "quantity": 0}},
	})
	requireStatus(t, rec, http.StatusBadRequest)
	resp := decodeAs[ErrorResponse](t, rec)
	var fields []string
	for _, it := range resp.Items {
		fields = append(fields, it.Field)
	}
	assert.Contains(t, fields, "shippingMethod")
	assert.Contains(t, fields, "items[0].quantity")
}

func TestCompliance_BadFilter(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/api/compliance/records?from=10/03/2025&type=sale", nil)
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Len(t, decodeAs[ErrorResponse](t, rec).Items, 2)
}

// =============================================================================
// SALES
// =============================================================================

func lotFor(t *testing.T, e *testEnv, product string) LotDTO {
	t.Helper()
	rec := e.do(http.MethodGet, "/api/inventory/lots?product="+product, nil)
	lots := decodeAs[[]LotDTO](t, rec)
	require.NotEmpty(t, lots)
	return lots[0]
}

func TestSales_FulfilmentOverHTTP(t *testing.T) {
	// GIVEN: A stocked shop and a paid request for two switches
	e := newTestEnv(t)
	e.loadScenario("stocked")

	rec := e.do(http.MethodPost, "/api/sales", map[string]any{
		"counterpartyId": "buyer-overseas",
		"items":          []map[string]any{{"productId": "switch", "quantity": 2}},
	})
	requireStatus(t, rec, http.StatusCreated)
	req := decodeAs[SalesRequestDTO](t, rec)
	base := "/api/sales/" + req.Number

	rec = e.do(http.MethodPost, base+"/auto-quote", nil)
	requireStatus(t, rec, http.StatusOK)
	req = decodeAs[SalesRequestDTO](t, rec)
	assert.Equal(t, "A", req.Items[0].Rank)
	assert.Equal(t, int64(28500), req.Items[0].UnitPrice)

	// Every unmet quote requirement is listed together
	rec = e.do(http.MethodPost, base+"/quote", QuoteRequest{})
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Len(t, decodeAs[ErrorResponse](t, rec).Items, 3)

	requireStatus(t, e.do(http.MethodPost, base+"/quote", QuoteRequest{ShippingFee: 4500, DeliveryEstimate: "7 days", StaffID: "staff-1"}), http.StatusOK)
	requireStatus(t, e.do(http.MethodPost, base+"/approve", nil), http.StatusOK)
	requireStatus(t, e.do(http.MethodPost, base+"/payment", nil), http.StatusOK)

	// WHEN: Fulfilled before allocating
	rec = e.do(http.MethodPost, base+"/fulfill", FulfillRequest{TrackingNumber: "EMS123"})

	// THEN: The unbalanced item is reported
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	resp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "allocation_mismatch", resp.Code)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Items[0].Requested)

	// WHEN: Allocated and fulfilled
	lot := lotFor(t, e, "switch")
	rec = e.do(http.MethodPut, base+"/allocations", AllocationRequest{ItemID: req.Items[0].ID, LotID: lot.ID, Quantity: 2})
	requireStatus(t, rec, http.StatusOK)

	rec = e.do(http.MethodPost, base+"/fulfill", FulfillRequest{Actor: "staff-1"})
	requireStatus(t, rec, http.StatusBadRequest)

	rec = e.do(http.MethodPost, base+"/fulfill", FulfillRequest{ShippedDate: "2025-03-12", TrackingNumber: "EMS123", Actor: "staff-1"})
	requireStatus(t, rec, http.StatusOK)
	req = decodeAs[SalesRequestDTO](t, rec)
	assert.Equal(t, "shipped", req.Status)
	assert.Len(t, req.Allocations[0].ManagementNumbers, 2)

	// THEN: The lot is depleted and the margin reflects the buyback cost
	rec = e.do(http.MethodGet, "/api/inventory/lots/"+lot.ID, nil)
	assert.Equal(t, 0, decodeAs[LotDTO](t, rec).Quantity)

	rec = e.do(http.MethodGet, base+"/margin", nil)
	requireStatus(t, rec, http.StatusOK)
	m := decodeAs[MarginDTO](t, rec)
	assert.Equal(t, int64(57000), m.Revenue)
	assert.Equal(t, int64(36000), m.Cost)
	assert.Equal(t, int64(21000), m.Profit)
	assert.Equal(t, "36.84", m.Percent)

	rec = e.do(http.MethodGet, "/api/compliance/records?type=disposition", nil)
	assert.Len(t, decodeAs[[]ComplianceRecordDTO](t, rec), 2)
}

func TestSales_AllocationErrors(t *testing.T) {
	// GIVEN: An approved request for one PS5 (the supplier lot holds 3)
	e := newTestEnv(t)
	e.loadScenario("stocked")
	rec := e.do(http.MethodPost, "/api/sales", map[string]any{
		"counterpartyId": "buyer-overseas",
		"items":          []map[string]any{{"productId": "ps5", "quantity": 1}},
	})
	req := decodeAs[SalesRequestDTO](t, rec)
	base := "/api/sales/" + req.Number
	requireStatus(t, e.do(http.MethodPost, base+"/auto-quote", nil), http.StatusOK)
	requireStatus(t, e.do(http.MethodPost, base+"/quote", QuoteRequest{ShippingFee: 3000, DeliveryEstimate: "5 days", StaffID: "staff-1"}), http.StatusOK)
	requireStatus(t, e.do(http.MethodPost, base+"/approve", nil), http.StatusOK)
	lot := lotFor(t, e, "ps5")

	// WHEN: More than the item's quantity is allocated
	rec = e.do(http.MethodPut, base+"/allocations", AllocationRequest{ItemID: req.Items[0].ID, LotID: lot.ID, Quantity: 2})

	// THEN: Over-allocation with both quantities
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	resp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "over_allocation", resp.Code)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 1, resp.Items[0].Requested)
	assert.Equal(t, 2, resp.Items[0].Allocated)

	// WHEN: More than the lot holds
	rec = e.do(http.MethodPut, base+"/allocations", AllocationRequest{ItemID: req.Items[0].ID, LotID: lot.ID, Quantity: 4})
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	resp = decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, "insufficient_stock", resp.Code)
	assert.Equal(t, 3, resp.Items[0].Available)

	// Unknown item
	rec = e.do(http.MethodPut, base+"/allocations", AllocationRequest{ItemID: "nope", LotID: lot.ID, Quantity: 1})
	requireStatus(t, rec, http.StatusNotFound)
}

func TestSales_ManualPriceSurvivesRequote(t *testing.T) {
	// GIVEN: A pending request with a manual price on its only item
	e := newTestEnv(t)
	resp := e.loadScenario("sales-pipeline")
	require.NotEmpty(t, resp.SalesRequest)

	rec := e.do(http.MethodPost, "/api/sales", map[string]any{
		"counterpartyId": "buyer-overseas",
		"items":          []map[string]any{{"productId": "switch", "quantity": 1}},
	})
	req := decodeAs[SalesRequestDTO](t, rec)
	base := "/api/sales/" + req.Number
	rec = e.do(http.MethodPut, base+"/items/"+req.Items[0].ID+"/price", ItemPriceRequest{Rank: "A", Price: 31000, Staff: "staff-1", Note: "loyal buyer"})
	requireStatus(t, rec, http.StatusOK)

	// WHEN: The base price changes
	requireStatus(t, e.do(http.MethodPut, "/api/prices/resale/N01/A", SetPriceRequest{Price: 33000}), http.StatusNoContent)

	// THEN: The override stays
	rec = e.do(http.MethodGet, base, nil)
	item := decodeAs[SalesRequestDTO](t, rec).Items[0]
	assert.True(t, item.ManualOverride)
	assert.Equal(t, int64(31000), item.UnitPrice)

	// WHEN: The override is cleared and re-quoted
	requireStatus(t, e.do(http.MethodDelete, base+"/items/"+req.Items[0].ID+"/price", nil), http.StatusOK)
	rec = e.do(http.MethodPost, base+"/auto-quote", nil)
	item = decodeAs[SalesRequestDTO](t, rec).Items[0]
	assert.False(t, item.ManualOverride)
	assert.Equal(t, int64(31350), item.UnitPrice) // 33000 -5%
}

// =============================================================================
// INVENTORY
// =============================================================================

func TestInventory_AddDepleteHistory(t *testing.T) {
	e := newTestEnv(t)
	e.loadScenario("catalog")

	rec := e.do(http.MethodPost, "/api/inventory/lots", AddStockRequest{
		ProductID: "ps5", Rank: "B", Quantity: 4, UnitCost: 30000, SourceKind: "supplier",
		CounterpartyID: "sup-wholesale", SourceReference: "PO-9", Actor: "staff-1",
	})
	requireStatus(t, rec, http.StatusCreated)
	lot := decodeAs[LotDTO](t, rec)

	// Same merge key merges
	rec = e.do(http.MethodPost, "/api/inventory/lots", AddStockRequest{
		ProductID: "ps5", Rank: "B", Quantity: 1, UnitCost: 30000, SourceKind: "supplier",
		CounterpartyID: "sup-wholesale", SourceReference: "PO-10", Actor: "staff-1",
	})
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, 5, decodeAs[LotDTO](t, rec).Quantity)

	rec = e.do(http.MethodPost, "/api/inventory/lots/"+lot.ID+"/deplete", DepleteStockRequest{Quantity: 6, Actor: "staff-1", Reason: "damaged"})
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	assert.Equal(t, "insufficient_stock", decodeAs[ErrorResponse](t, rec).Code)

	rec = e.do(http.MethodPost, "/api/inventory/lots/"+lot.ID+"/deplete", DepleteStockRequest{Quantity: 2, Actor: "staff-1", Reason: "damaged"})
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, 3, decodeAs[LotDTO](t, rec).Quantity)

	rec = e.do(http.MethodGet, "/api/inventory/lots/"+lot.ID+"/history", nil)
	history := decodeAs[[]HistoryEntryDTO](t, rec)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"create", "merge", "deplete"}, []string{history[0].Kind, history[1].Kind, history[2].Kind})

	rec = e.do(http.MethodGet, "/api/inventory/summary", nil)
	lines := decodeAs[[]SummaryLineDTO](t, rec)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Units)
	assert.Equal(t, int64(90000), lines[0].Cost)

	rec = e.do(http.MethodGet, "/api/inventory/lots?rank=Q", nil)
	requireStatus(t, rec, http.StatusBadRequest)
}

// =============================================================================
// SCENARIOS, SCHEDULER, METRICS
// =============================================================================

func TestScenarios_RequireEmptyDatabase(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/api/scenarios", nil)
	assert.Len(t, decodeAs[[]ScenarioDTO](t, rec), len(scenarios))

	resp := e.loadScenario("sales-pipeline")
	assert.Equal(t, 3, resp.Products)
	assert.Len(t, resp.Applications, 1)

	rec = e.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenarioId": "catalog"})
	requireStatus(t, rec, http.StatusConflict)

	rec = e.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenarioId": "nope"})
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestScenarios_NotMountedByDefault(t *testing.T) {
	e := newTestEnv(t)
	router := NewRouter(e.handler, RouterOptions{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scenarios", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAutoCommitScheduler_CommitsAutoApproved(t *testing.T) {
	// GIVEN: An auto-approval application confirmed by the assessor
	e := newTestEnv(t)
	e.loadScenario("catalog")
	ctx := context.Background()
	h := e.handler

	app, err := h.Buyback.Submit(ctx, buyback.SubmitInput{
		CustomerID: "cust-yamada", ShippingMethod: core.ShippingSelfShip, ApprovalMethod: core.ApprovalAuto,
		Items: []buyback.ItemInput{{ProductID: "ps5", Hardware: &core.HardwareDetail{Color: "white"}, Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = h.Buyback.MarkReceived(ctx, app.Number, march10)
	require.NoError(t, err)
	_, err = h.Buyback.BeginAssessment(ctx, app.Number)
	require.NoError(t, err)
	_, err = h.Buyback.SetItemAssessment(ctx, app.Number, app.Items[0].ID, core.RankA, 0)
	require.NoError(t, err)
	app, err = h.Buyback.ConfirmAssessment(ctx, app.Number, "staff-1")
	require.NoError(t, err)
	require.Equal(t, core.BuybackAutoApproved, app.Status)

	// WHEN: A pass is triggered through the admin endpoint
	rec := e.do(http.MethodPost, "/api/admin/auto-commit", nil)

	// THEN: The application is in inventory and the run is recorded
	requireStatus(t, rec, http.StatusOK)
	run := decodeAs[AutoCommitRun](t, rec)
	assert.Equal(t, []string{string(app.Number)}, run.Committed)

	got, err := h.Buyback.Get(ctx, app.Number)
	require.NoError(t, err)
	assert.Equal(t, core.BuybackInInventory, got.Status)

	rec = e.do(http.MethodGet, "/api/admin/auto-commit/runs", nil)
	assert.Len(t, decodeAs[[]AutoCommitRun](t, rec), 1)

	// A second pass finds nothing
	assert.Empty(t, h.Scheduler.RunNow(ctx).Committed)
}

func TestAutoCommitScheduler_StartStop(t *testing.T) {
	e := newTestEnv(t)
	s := e.handler.Scheduler
	s.CheckInterval = time.Hour

	s.Start()
	s.Start() // no second goroutine
	s.Stop()
	s.Stop()

	assert.NotEmpty(t, s.Runs(), "start runs one pass immediately")
}

func TestMetrics_RoutePatternAndEvents(t *testing.T) {
	e := newTestEnv(t)
	e.loadScenario("catalog")
	e.do(http.MethodGet, "/api/products/switch", nil)

	rec := e.do(http.MethodGet, "/metrics", nil)
	requireStatus(t, rec, http.StatusOK)
	out := rec.Body.String()
	assert.Contains(t, out, `route="/api/products/{id}"`)
	assert.True(t, strings.Contains(out, `buyback_events_total{type="pricing.base_price_changed"}`))
}
