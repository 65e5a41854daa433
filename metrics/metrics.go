// Package metrics exposes engine activity to Prometheus. Counters are fed by
// bus events; stock levels are read from the inventory ledger on scrape.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/inventory"
)

const namespace = "buyback"

// Collector owns a private registry so tests and multiple engines in one
// process never collide on metric names.
type Collector struct {
	registry *prometheus.Registry

	eventsTotal      *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	unitsAcquired    prometheus.Counter
	payoutYen        prometheus.Counter
	requestsShipped  prometheus.Counter
	profitYen        prometheus.Gauge
	lotsDepleted     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// New registers every metric. Go runtime and process collectors are included.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Events published on the bus, by type.",
	}, []string{"type"})

	c.transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Workflow status changes, by workflow and target status.",
	}, []string{"workflow", "status"})

	c.unitsAcquired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "units_acquired_total",
		Help:      "Units committed to inventory from buyback applications.",
	})

	c.payoutYen = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_yen_total",
		Help:      "Amount payable to customers for committed applications.",
	})

	c.requestsShipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sales",
		Name:      "shipped_total",
		Help:      "Sales requests fulfilled.",
	})

	// A gauge because a sale below cost lowers it.
	c.profitYen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sales",
		Name:      "profit_yen",
		Help:      "Cumulative profit of fulfilled sales requests.",
	})

	c.lotsDepleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "lots_depleted_total",
		Help:      "Lots whose quantity reached zero, by product code.",
	}, []string{"product_code"})

	c.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	c.registry.MustRegister(
		c.eventsTotal,
		c.transitionsTotal,
		c.unitsAcquired,
		c.payoutYen,
		c.requestsShipped,
		c.profitYen,
		c.lotsDepleted,
		c.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry backing Handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Attach subscribes the collector to every event type.
func (c *Collector) Attach(bus *events.Bus) {
	bus.Subscribe("metrics", c.Observe)
}

// Observe updates counters for one event. It never fails.
func (c *Collector) Observe(_ context.Context, e events.Event) error {
	c.eventsTotal.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case events.BuybackStatusChanged:
		c.transitionsTotal.WithLabelValues("buyback", e.To).Inc()
	case events.SalesStatusChanged:
		c.transitionsTotal.WithLabelValues("sales", e.To).Inc()
	case events.BuybackCommitted:
		c.unitsAcquired.Add(float64(e.Quantity))
		if e.Amount > 0 {
			c.payoutYen.Add(float64(e.Amount))
		}
	case events.SalesShipped:
		c.requestsShipped.Inc()
		c.profitYen.Add(float64(e.Amount))
	case events.InventoryLotDepleted:
		c.lotsDepleted.WithLabelValues(e.ProductCode).Inc()
	}
	return nil
}

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// =============================================================================
// STOCK - Read on scrape
// =============================================================================

// StockSource is satisfied by *inventory.Ledger.
type StockSource interface {
	Summary(ctx context.Context) ([]inventory.SummaryLine, error)
}

var (
	stockUnitsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "inventory", "units"),
		"Units on hand, by product code and rank.",
		[]string{"product_code", "rank"}, nil,
	)
	stockCostDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "inventory", "cost_yen"),
		"Acquisition cost of units on hand, by product code and rank.",
		[]string{"product_code", "rank"}, nil,
	)
)

type stockCollector struct {
	source  StockSource
	timeout time.Duration
	logger  *zap.Logger
}

// WatchStock registers a collector that reads the stock summary on every
// scrape. A failing read is logged and the scrape carries no stock series.
func (c *Collector) WatchStock(source StockSource, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.registry.MustRegister(&stockCollector{source: source, timeout: 5 * time.Second, logger: logger})
}

func (s *stockCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- stockUnitsDesc
	ch <- stockCostDesc
}

func (s *stockCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	lines, err := s.source.Summary(ctx)
	if err != nil {
		s.logger.Error("failed to read stock summary", zap.Error(err))
		return
	}
	for _, l := range lines {
		ch <- prometheus.MustNewConstMetric(stockUnitsDesc, prometheus.GaugeValue, float64(l.Units), l.ProductCode, string(l.Rank))
		ch <- prometheus.MustNewConstMetric(stockCostDesc, prometheus.GaugeValue, float64(l.Cost), l.ProductCode, string(l.Rank))
	}
}
