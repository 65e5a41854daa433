/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate an empty database with a small
  catalog, counterparties, price sheets and, optionally, stock and open
  documents. Every step goes through the services, so a loaded scenario is
  indistinguishable from data entered by staff.

AVAILABLE SCENARIOS:
  catalog:         Products, one customer, one buyer, one supplier, both price sheets
  stocked:         catalog + supplier stock + one self-ship buyback committed to inventory
  sales-pipeline:  stocked + a sales request auto-quoted and awaiting the buyer

USAGE VIA API:
  POST /api/scenarios/load
  {"scenarioId": "stocked"}

NOTE:
  Scenarios refuse to load into a database that already has products.
  Routes are mounted only when RouterOptions.EnableScenarios is set.

SEE ALSO:
  - factory/pricesheet.go: Price sheet and catalog JSON
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/console-buyback/buyback"
	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/inventory"
	"github.com/warp/console-buyback/sales"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest names the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId" validate:"required,oneof=catalog stocked sales-pipeline"`
}

// LoadScenarioResponse lists the documents a scenario created.
type LoadScenarioResponse struct {
	ScenarioID   string   `json:"scenarioId"`
	Products     int      `json:"products"`
	Applications []string `json:"applications,omitempty"`
	SalesRequest string   `json:"salesRequest,omitempty"`
	Lots         []string `json:"lots,omitempty"`
}

var scenarios = []ScenarioDTO{
	{ID: "catalog", Name: "Catalog", Description: "Products, counterparties and both price tables"},
	{ID: "stocked", Name: "Stocked shop", Description: "Catalog plus supplier stock and one committed buyback"},
	{ID: "sales-pipeline", Name: "Sales pipeline", Description: "Stocked shop plus a quoted overseas request"},
}

// ErrNotEmpty is returned when a scenario is loaded over existing data.
var ErrNotEmpty = errors.New("database already has products")

const scenarioActor = "scenario"

const demoCatalog = `[
  {"id": "switch", "manufacturer": "Nintendo", "model": "Switch", "name": "Nintendo Switch",
   "type": "hardware", "release_year": 2017, "code": "N01"},
  {"id": "ps5", "manufacturer": "SIE", "model": "PS5", "name": "PlayStation 5",
   "type": "hardware", "release_year": 2020, "code": "S01"},
  {"id": "zelda-totk", "manufacturer": "Nintendo", "model": "Tears of the Kingdom",
   "name": "The Legend of Zelda: Tears of the Kingdom", "type": "software", "release_year": 2023, "code": "NS"}
]`

const demoBuybackSheet = `{
  "direction": "buyback",
  "prices": {
    "N01": {"S": 22000, "A": 18000, "B": 14000, "C": 8000},
    "S01": {"S": 45000, "A": 40000, "B": 32000},
    "NS":  {"S": 4000, "A": 3500, "B": 2500}
  }
}`

const demoResaleSheet = `{
  "direction": "resale",
  "prices": {
    "N01": {"S": 35000, "A": 30000, "B": 24000, "C": 15000},
    "S01": {"S": 62000, "A": 55000, "B": 46000},
    "NS":  {"S": 6000, "A": 5200}
  },
  "adjustments": [
    {"counterparty_id": "buyer-overseas", "product_code": "N01", "kind": "percentage", "value": -5}
  ]
}`

func demoCounterparties() []core.Counterparty {
	return []core.Counterparty{
		{
			ID: "cust-yamada", Kind: core.CounterpartyCustomer, Name: "山田太郎", NameKana: "やまだたろう",
			Address: "東京都千代田区1-1-1", Occupation: "会社員",
			BirthDate: time.Date(1985, time.April, 12, 0, 0, 0, 0, time.UTC), Country: "JP",
		},
		{ID: "buyer-overseas", Kind: core.CounterpartyBuyer, Name: "Overseas Games Ltd", Country: "US"},
		{ID: "sup-wholesale", Kind: core.CounterpartySupplier, Name: "Wholesale Trading", Country: "JP"},
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the loadable scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario populates an empty database.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp, err := h.loadScenario(r.Context(), req.ScenarioID)
	if errors.Is(err, ErrNotEmpty) {
		writeError(w, http.StatusConflict, "Scenario requires an empty database", err)
		return
	}
	if err != nil {
		h.writeDomainError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, id string) (LoadScenarioResponse, error) {
	resp := LoadScenarioResponse{ScenarioID: id}
	existing, err := h.Catalog.Products(ctx)
	if err != nil {
		return resp, err
	}
	if len(existing) > 0 {
		return resp, ErrNotEmpty
	}

	if resp.Products, err = h.loadCatalogScenario(ctx); err != nil {
		return resp, err
	}
	if id == "catalog" {
		return resp, nil
	}

	if err := h.loadStockScenario(ctx, &resp); err != nil {
		return resp, err
	}
	if id == "stocked" {
		return resp, nil
	}

	err = h.loadSalesScenario(ctx, &resp)
	return resp, err
}

func (h *Handler) loadCatalogScenario(ctx context.Context) (int, error) {
	products, err := h.Factory.ParseCatalog(demoCatalog)
	if err != nil {
		return 0, err
	}
	n, err := h.Catalog.Import(ctx, products)
	if err != nil {
		return n, err
	}
	for _, c := range demoCounterparties() {
		if err := h.Catalog.PutCounterparty(ctx, &c); err != nil {
			return n, err
		}
	}
	for _, js := range []string{demoBuybackSheet, demoResaleSheet} {
		sheet, err := h.Factory.ParsePriceSheet(js)
		if err != nil {
			return n, err
		}
		if err := sheet.Apply(ctx, h.Pricing, scenarioActor); err != nil {
			return n, err
		}
	}
	return n, nil
}

// loadStockScenario adds supplier stock and walks one self-ship application
// from submission to inventory.
func (h *Handler) loadStockScenario(ctx context.Context, resp *LoadScenarioResponse) error {
	res, err := h.Inventory.Add(ctx, inventory.AddInput{
		ProductID: "ps5",
		Rank:      core.RankA,
		Color:     "white",
		Quantity:  3,
		UnitCost:  38000,
		Source:    core.LotSource{Kind: core.SourceSupplier, CounterpartyID: "sup-wholesale", Reference: "PO-0001"},
		Actor:     scenarioActor,
		Reason:    "opening stock",
		Reference: core.Reference{Kind: core.RefManual, ID: "PO-0001"},
	})
	if err != nil {
		return err
	}
	resp.Lots = append(resp.Lots, string(res.Lot.ID))

	app, err := h.Buyback.Submit(ctx, buyback.SubmitInput{
		CustomerID:     "cust-yamada",
		ShippingMethod: core.ShippingSelfShip,
		ApprovalMethod: core.ApprovalManual,
		Items: []buyback.ItemInput{
			{ProductID: "switch", Hardware: &core.HardwareDetail{Color: "neon"}, DeclaredRank: core.RankA, Quantity: 2},
			{ProductID: "zelda-totk", Software: &core.SoftwareDetail{Title: "Tears of the Kingdom"}, Quantity: 1},
		},
	})
	if err != nil {
		return err
	}
	now := h.Clock.Now()
	steps := []func() (core.BuybackApplication, error){
		func() (core.BuybackApplication, error) { return h.Buyback.MarkReceived(ctx, app.Number, now) },
		func() (core.BuybackApplication, error) { return h.Buyback.BeginAssessment(ctx, app.Number) },
		func() (core.BuybackApplication, error) {
			return h.Buyback.SetItemAssessment(ctx, app.Number, app.Items[0].ID, core.RankA, 0)
		},
		func() (core.BuybackApplication, error) {
			return h.Buyback.SetItemAssessment(ctx, app.Number, app.Items[1].ID, core.RankS, 0)
		},
		func() (core.BuybackApplication, error) { return h.Buyback.ConfirmAssessment(ctx, app.Number, scenarioActor) },
		func() (core.BuybackApplication, error) { return h.Buyback.Approve(ctx, app.Number) },
		func() (core.BuybackApplication, error) { return h.Buyback.CommitToInventory(ctx, app.Number, scenarioActor) },
	}
	for _, step := range steps {
		if _, err := step(); err != nil {
			return fmt.Errorf("application %s: %w", app.Number, err)
		}
	}
	resp.Applications = append(resp.Applications, string(app.Number))
	return nil
}

// loadSalesScenario leaves one request in status quoted.
func (h *Handler) loadSalesScenario(ctx context.Context, resp *LoadScenarioResponse) error {
	req, err := h.Sales.Submit(ctx, sales.SubmitInput{
		CounterpartyID: "buyer-overseas",
		Items: []sales.ItemInput{
			{ProductID: "switch", Quantity: 2},
			{ProductID: "ps5", Quantity: 1},
		},
		Notes: "scenario request",
	})
	if err != nil {
		return err
	}
	if _, err := h.Sales.AutoQuote(ctx, req.Number); err != nil {
		return err
	}
	if _, err := h.Sales.ConfirmQuote(ctx, req.Number, sales.QuoteInput{
		ShippingFee:      4500,
		DeliveryEstimate: "7-10 days",
		StaffID:          scenarioActor,
	}); err != nil {
		return err
	}
	resp.SalesRequest = string(req.Number)
	return nil
}
