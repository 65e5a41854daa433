package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/console-buyback/events"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	var calls []string

	bus.Subscribe("first", func(_ context.Context, e events.Event) error {
		calls = append(calls, "first:"+e.Subject)
		return nil
	})
	bus.Subscribe("second", func(_ context.Context, e events.Event) error {
		calls = append(calls, "second:"+e.Subject)
		return nil
	}, events.SalesShipped)

	bus.Publish(context.Background(),
		events.Event{Type: events.SalesShipped, Subject: "S1"},
		events.Event{Type: events.BuybackCommitted, Subject: "B1"},
	)

	assert.Equal(t, []string{"first:S1", "second:S1", "first:B1"}, calls)
}

func TestBus_FillsIDAndTime(t *testing.T) {
	bus := events.NewBus(nil)
	var got events.Event
	bus.Subscribe("capture", func(_ context.Context, e events.Event) error {
		got = e
		return nil
	})

	bus.Publish(context.Background(), events.Event{Type: events.InventoryLotDepleted})

	assert.NotEmpty(t, got.ID)
	assert.False(t, got.At.IsZero())
}

func TestBus_HandlerFailureIsolated(t *testing.T) {
	// GIVEN: A failing handler and a panicking handler ahead of a healthy one
	core, logs := observer.New(zap.ErrorLevel)
	bus := events.NewBus(zap.New(core))
	reached := false

	bus.Subscribe("failing", func(context.Context, events.Event) error { return errors.New("boom") })
	bus.Subscribe("panicking", func(context.Context, events.Event) error { panic("bad handler") })
	bus.Subscribe("healthy", func(context.Context, events.Event) error {
		reached = true
		return nil
	})

	// WHEN: Publishing
	require.NotPanics(t, func() {
		bus.Publish(context.Background(), events.Event{Type: events.SalesShipped})
	})

	// THEN: The healthy handler still ran and both failures were logged
	assert.True(t, reached)
	assert.Equal(t, 1, logs.FilterMessage("handler failed to process event").Len())
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
}

func TestEvent_Affects(t *testing.T) {
	e := events.Event{ProductCode: "N01"}
	assert.True(t, e.Affects("N01"))
	assert.False(t, e.Affects("S01"))

	batch := events.Event{ProductCodes: []string{"N01", "S01"}}
	assert.True(t, batch.Affects("S01"))
	assert.False(t, batch.Affects("M01"))
}

func TestBuffer_FlushPublishesInOrder(t *testing.T) {
	bus := events.NewBus(nil)
	var got []string
	bus.Subscribe("capture", func(_ context.Context, e events.Event) error {
		got = append(got, e.Subject)
		return nil
	})

	buf := &events.Buffer{}
	buf.Publish(context.Background(), events.Event{Type: events.InventoryLotDepleted, Subject: "a"})
	buf.Publish(context.Background(), events.Event{Type: events.InventoryLotDepleted, Subject: "b"})
	assert.Empty(t, got, "nothing is delivered before Flush")

	buf.Flush(context.Background(), bus)
	assert.Equal(t, []string{"a", "b"}, got)

	buf.Flush(context.Background(), bus)
	assert.Len(t, got, 2, "flush empties the buffer")
}
