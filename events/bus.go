/*
bus.go - In-process publish/subscribe

PURPOSE:
  Cross-component notification ("base price changed, recompute quotes",
  "lot depleted, update gauges") goes through one explicit bus instead of
  polling.

DELIVERY:
  - Synchronous: Publish returns after every handler ran
  - Ordered: handlers run in subscription order, events in argument order
  - Isolated: a handler error or panic is logged and never reaches the
    publisher or the remaining handlers

  Publishers call Publish after their store unit committed, so handlers
  always observe committed state and may open their own units.
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
)

type Type string

const (
	BuybackCommitted         Type = "buyback.committed"
	BuybackStatusChanged     Type = "buyback.status_changed"
	SalesStatusChanged       Type = "sales.status_changed"
	SalesShipped             Type = "sales.shipped"
	PricingBasePriceChanged  Type = "pricing.base_price_changed"
	PricingAdjustmentChanged Type = "pricing.adjustment_changed"
	InventoryLotDepleted     Type = "inventory.lot_depleted"
)

// Event is a fact that already happened. Only the fields relevant to Type are
// set.
type Event struct {
	ID   string
	Type Type
	At   time.Time

	Subject        string // application number, request number or lot ID
	From, To       string // statuses for *_status_changed
	ProductCode    string
	ProductCodes   []string
	Direction      core.PriceDirection
	CounterpartyID core.CounterpartyID
	Quantity       int
	Amount         core.Money
}

// Affects reports whether the event concerns a product code.
func (e Event) Affects(code string) bool {
	if e.ProductCode == code {
		return true
	}
	for _, c := range e.ProductCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Handler processes one event.
type Handler func(ctx context.Context, e Event) error

// Publisher is what components depend on.
type Publisher interface {
	Publish(ctx context.Context, events ...Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) {}

type subscription struct {
	name    string
	types   map[Type]bool
	handler Handler
}

// Bus is the in-memory Publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *zap.Logger
	clock  core.Clock
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

var _ Publisher = (*Bus)(nil)

// Subscribe registers h for the given types, or for every type when none are
// given. name appears in logs.
func (b *Bus) Subscribe(name string, h Handler, types ...Type) {
	sub := subscription{name: name, handler: h}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.logger.Debug("handler subscribed", zap.String("handler", name), zap.Any("event_types", types))
}

// Publish delivers events to every matching handler. ID and At are filled in
// when empty.
func (b *Bus) Publish(ctx context.Context, events ...Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.At.IsZero() {
			e.At = b.clock.Now()
		}
		for _, s := range subs {
			if s.types != nil && !s.types[e.Type] {
				continue
			}
			if err := b.dispatch(ctx, s, e); err != nil {
				b.logger.Error("handler failed to process event",
					zap.String("handler", s.name),
					zap.String("event_type", string(e.Type)),
					zap.String("event_id", e.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("handler", s.name),
				zap.String("event_type", string(e.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	return s.handler(ctx, e)
}

// Buffer collects events raised inside a store unit so they can be published
// once the unit commits.
type Buffer struct {
	events []Event
}

var _ Publisher = (*Buffer)(nil)

func (b *Buffer) Publish(_ context.Context, events ...Event) {
	b.events = append(b.events, events...)
}

// Flush publishes the buffered events to pub and empties the buffer.
func (b *Buffer) Flush(ctx context.Context, pub Publisher) {
	if len(b.events) == 0 {
		return
	}
	pending := b.events
	b.events = nil
	pub.Publish(ctx, pending...)
}

// Discard drops buffered events, used when the unit rolled back.
func (b *Buffer) Discard() { b.events = nil }
