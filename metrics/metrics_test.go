package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/inventory"
	"github.com/warp/console-buyback/metrics"
)

func scrape(t *testing.T, c *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector_CountsBusEvents(t *testing.T) {
	// GIVEN: A collector attached to a bus
	c := metrics.New()
	bus := events.NewBus(nil)
	c.Attach(bus)
	ctx := context.Background()

	// WHEN: Workflow events are published
	bus.Publish(ctx,
		events.Event{Type: events.BuybackStatusChanged, From: "applied", To: "received"},
		events.Event{Type: events.BuybackCommitted, Quantity: 3, Amount: 43000},
		events.Event{Type: events.SalesStatusChanged, From: "pending", To: "quoted"},
		events.Event{Type: events.SalesShipped, Amount: 32000},
		events.Event{Type: events.SalesShipped, Amount: -2000},
		events.Event{Type: events.InventoryLotDepleted, ProductCode: "N01", Quantity: 1},
	)

	// THEN: Counters reflect them
	out := scrape(t, c)
	assert.Contains(t, out, `buyback_events_total{type="sales.shipped"} 2`)
	assert.Contains(t, out, `buyback_status_transitions_total{status="received",workflow="buyback"} 1`)
	assert.Contains(t, out, `buyback_status_transitions_total{status="quoted",workflow="sales"} 1`)
	assert.Contains(t, out, `buyback_units_acquired_total 3`)
	assert.Contains(t, out, `buyback_payout_yen_total 43000`)
	assert.Contains(t, out, `buyback_sales_shipped_total 2`)
	assert.Contains(t, out, `buyback_sales_profit_yen 30000`)
	assert.Contains(t, out, `buyback_inventory_lots_depleted_total{product_code="N01"} 1`)
}

type fakeStock struct {
	lines []inventory.SummaryLine
	err   error
}

func (f fakeStock) Summary(context.Context) ([]inventory.SummaryLine, error) {
	return f.lines, f.err
}

func TestCollector_StockOnScrape(t *testing.T) {
	c := metrics.New()
	c.WatchStock(fakeStock{lines: []inventory.SummaryLine{
		{ProductCode: "N01", Rank: core.RankA, Units: 4, Cost: 80000},
		{ProductCode: "S01", Rank: core.RankS, Units: 1, Cost: 35000},
	}}, nil)

	out := scrape(t, c)
	assert.Contains(t, out, `buyback_inventory_units{product_code="N01",rank="A"} 4`)
	assert.Contains(t, out, `buyback_inventory_cost_yen{product_code="S01",rank="S"} 35000`)
}

func TestCollector_StockReadFailureSkipsSeries(t *testing.T) {
	c := metrics.New()
	c.WatchStock(fakeStock{err: errors.New("db closed")}, nil)

	out := scrape(t, c)
	assert.NotContains(t, out, "buyback_inventory_units{")
	assert.Contains(t, out, "go_goroutines")
}

func TestCollector_ObserveRequest(t *testing.T) {
	c := metrics.New()
	c.ObserveRequest(http.MethodPost, "/api/sales/{number}/fulfill", http.StatusUnprocessableEntity, 25*time.Millisecond)

	out := scrape(t, c)
	assert.Contains(t, out, `buyback_http_request_duration_seconds_count{method="POST",route="/api/sales/{number}/fulfill",status="422"} 1`)
}
