/*
Package factory provides JSON to Go conversion for price sheets and catalogs.

PURPOSE:
  Converts JSON price sheets into core.PriceTable and core.PriceAdjustment
  values, and JSON catalogs into core.Product values. Buyers and staff keep
  price lists as files; the factory turns them into the structs the pricing
  engine and the catalog service accept.

PRICE SHEET SCHEMA:
  {
    "direction": "resale",
    "prices": {
      "N01": {"S": 35000, "A": 30000, "B": 24000},
      "S01": {"A": 42000}
    },
    "adjustments": [
      {"counterparty_id": "buyer-1", "product_code": "N01",
       "kind": "percentage", "value": 10, "rank": "S"},
      {"counterparty_id": "buyer-2", "product_code": "S01",
       "kind": "fixed", "value": -1500}
    ]
  }

CATALOG SCHEMA:
  [
    {"id": "switch", "manufacturer": "Nintendo", "model": "Switch",
     "name": "Nintendo Switch", "type": "hardware", "release_year": 2017},
    {"id": "switch-oled", "manufacturer": "Nintendo", "model": "Switch OLED",
     "name": "Nintendo Switch OLED", "type": "hardware", "model_code": "02"}
  ]

KEY FEATURES:
  - Validates JSON structure (struct tags via core.ValidateStruct)
  - Ranks are case-insensitive, manufacturers accept brand names
  - Sheets round-trip through ToJSON
  - PriceSheet.Apply writes table and adjustments through the pricing engine

USAGE:
  f := factory.New()
  sheet, err := f.ParsePriceSheet(jsonString)
  if err != nil { ... }
  err = sheet.Apply(ctx, engine, "staff-1")

  products, err := f.ParseCatalog(jsonString)
  n, err := catalogService.Import(ctx, products)

SEE ALSO:
  - pricing/engine.go: SetPriceTable / SetAdjustment
  - catalog/catalog.go: Import
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/pricing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PriceSheetJSON is the JSON representation of a price sheet.
type PriceSheetJSON struct {
	Direction   string                      `json:"direction" validate:"required,oneof=buyback resale"`
	Prices      map[string]map[string]int64 `json:"prices"`
	Adjustments []AdjustmentJSON            `json:"adjustments,omitempty" validate:"omitempty,dive"`
}

// AdjustmentJSON represents one per-counterparty adjustment.
type AdjustmentJSON struct {
	CounterpartyID string `json:"counterparty_id" validate:"required"`
	ProductCode    string `json:"product_code" validate:"required"`
	Kind           string `json:"kind" validate:"required,oneof=percentage fixed"`
	Value          int64  `json:"value"`
	Rank           string `json:"rank,omitempty"` // empty applies to every rank
}

// ProductJSON is one catalog entry.
type ProductJSON struct {
	ID           string `json:"id" validate:"required"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Name         string `json:"name" validate:"required"`
	Type         string `json:"type" validate:"required,oneof=hardware software"`
	ReleaseYear  int    `json:"release_year,omitempty" validate:"omitempty,gte=1970"`
	Code         string `json:"code,omitempty"`
	ModelCode    string `json:"model_code,omitempty"`
}

// =============================================================================
// PRICE SHEET
// =============================================================================

// PriceSheet is a parsed sheet: one direction's base table plus adjustments.
type PriceSheet struct {
	Table       core.PriceTable
	Adjustments []core.PriceAdjustment
}

// Apply writes the table, then each adjustment, attributing adjustments to
// actor. The table is one unit; adjustments are written one by one and the
// first failure stops the import.
func (s *PriceSheet) Apply(ctx context.Context, engine *pricing.Engine, actor string) error {
	if len(s.Table.Prices) > 0 {
		if err := engine.SetPriceTable(ctx, s.Table); err != nil {
			return fmt.Errorf("apply price table: %w", err)
		}
	}
	for i, adj := range s.Adjustments {
		adj.UpdatedBy = actor
		if err := engine.SetAdjustment(ctx, adj); err != nil {
			return fmt.Errorf("apply adjustment %d (%s/%s): %w", i, adj.CounterpartyID, adj.ProductCode, err)
		}
	}
	return nil
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts JSON documents to engine types.
type Factory struct{}

// New creates a new factory.
func New() *Factory {
	return &Factory{}
}

// ParsePriceSheet parses a JSON string into a PriceSheet.
func (f *Factory) ParsePriceSheet(jsonStr string) (*PriceSheet, error) {
	var sj PriceSheetJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return nil, fmt.Errorf("failed to parse price sheet JSON: %w", err)
	}
	return f.FromJSON(sj)
}

// FromJSON converts PriceSheetJSON to a PriceSheet.
func (f *Factory) FromJSON(sj PriceSheetJSON) (*PriceSheet, error) {
	if err := core.ValidateStruct(sj); err != nil {
		return nil, err
	}

	v := &core.ValidationError{}
	table := core.NewPriceTable(core.PriceDirection(sj.Direction))
	for code, row := range sj.Prices {
		for rs, price := range row {
			rank, err := core.ParseRank(rs)
			if err != nil {
				v.Add(fmt.Sprintf("prices[%s][%s]", code, rs), "unknown rank")
				continue
			}
			table.Set(code, rank, core.Money(price))
		}
	}

	sheet := &PriceSheet{Table: table}
	for i, aj := range sj.Adjustments {
		adj := core.PriceAdjustment{
			CounterpartyID: core.CounterpartyID(aj.CounterpartyID),
			ProductCode:    aj.ProductCode,
			Kind:           core.AdjustmentKind(aj.Kind),
			Value:          aj.Value,
		}
		if aj.Rank != "" {
			rank, err := core.ParseRank(aj.Rank)
			if err != nil {
				v.Add(fmt.Sprintf("adjustments[%d].rank", i), "unknown rank")
				continue
			}
			adj.RankScope = &rank
		}
		sheet.Adjustments = append(sheet.Adjustments, adj)
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return sheet, nil
}

// ToJSON converts a table and its adjustments back to PriceSheetJSON.
func (f *Factory) ToJSON(table core.PriceTable, adjs []core.PriceAdjustment) PriceSheetJSON {
	sj := PriceSheetJSON{
		Direction: string(table.Direction),
		Prices:    make(map[string]map[string]int64, len(table.Prices)),
	}
	for code, row := range table.Prices {
		out := make(map[string]int64, len(row))
		for rank, price := range row {
			out[string(rank)] = int64(price)
		}
		sj.Prices[code] = out
	}
	for _, adj := range adjs {
		aj := AdjustmentJSON{
			CounterpartyID: string(adj.CounterpartyID),
			ProductCode:    adj.ProductCode,
			Kind:           string(adj.Kind),
			Value:          adj.Value,
		}
		if adj.RankScope != nil {
			aj.Rank = string(*adj.RankScope)
		}
		sj.Adjustments = append(sj.Adjustments, aj)
	}
	slices.SortFunc(sj.Adjustments, func(a, b AdjustmentJSON) int {
		if c := strings.Compare(a.CounterpartyID, b.CounterpartyID); c != 0 {
			return c
		}
		return strings.Compare(a.ProductCode, b.ProductCode)
	})
	return sj
}

// =============================================================================
// CATALOG
// =============================================================================

// ParseCatalog parses a JSON array of products. Codes left empty are derived
// by the catalog service on import.
func (f *Factory) ParseCatalog(jsonStr string) ([]core.Product, error) {
	var entries []ProductJSON
	if err := json.Unmarshal([]byte(jsonStr), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	products := make([]core.Product, 0, len(entries))
	for i, pj := range entries {
		if err := core.ValidateStruct(pj); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		products = append(products, core.Product{
			ID:                core.ProductID(pj.ID),
			Manufacturer:      core.ParseManufacturer(pj.Manufacturer),
			Model:             pj.Model,
			Name:              pj.Name,
			Type:              core.ProductType(pj.Type),
			ReleaseYear:       pj.ReleaseYear,
			Code:              pj.Code,
			ModelCodeOverride: pj.ModelCode,
		})
	}
	return products, nil
}
