package buyback_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/console-buyback/buyback"
	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/core/store"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/identifier"
	"github.com/warp/console-buyback/inventory"
	"github.com/warp/console-buyback/pricing"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var march10 = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return march10 }

type fixture struct {
	svc    *buyback.Service
	store  *store.Memory
	ledger *inventory.Ledger
	bus    *events.Bus
	seen   []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, s.PutProduct(ctx, &core.Product{
		ID: "switch", Manufacturer: core.ManufacturerNintendo, Model: "Switch", Name: "Nintendo Switch",
		Type: core.ProductHardware, Code: "N01",
	}))
	require.NoError(t, s.PutProduct(ctx, &core.Product{
		ID: "zelda", Manufacturer: core.ManufacturerNintendo, Name: "Zelda", Type: core.ProductSoftware, Code: "NS",
	}))
	require.NoError(t, s.PutCounterparty(ctx, &core.Counterparty{
		ID: "cust-1", Kind: core.CounterpartyCustomer, Name: "山田太郎", NameKana: "ヤマダタロウ",
		Address: "Tokyo", Occupation: "engineer", BirthDate: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC),
	}))

	f := &fixture{store: s, bus: events.NewBus(nil)}
	f.bus.Subscribe("capture", func(_ context.Context, e events.Event) error {
		f.seen = append(f.seen, e)
		return nil
	})

	clock := core.Clock(fixedClock)
	engine := pricing.NewEngine(s, pricing.Options{Publisher: f.bus, Clock: clock})
	require.NoError(t, engine.SetBasePrice(ctx, core.PriceBuyback, "N01", core.RankA, 20000))
	require.NoError(t, engine.SetBasePrice(ctx, core.PriceBuyback, "NS", core.RankA, 3000))

	f.ledger = inventory.NewLedger(s, inventory.Options{Publisher: f.bus, Clock: clock})
	f.svc = buyback.NewService(s, engine, f.ledger, buyback.Options{
		SelfShipBonus: buyback.DefaultSelfShipBonus,
		Publisher:     f.bus,
		Clock:         clock,
	})
	return f
}

func switchItem(qty int) buyback.ItemInput {
	return buyback.ItemInput{
		ProductID: "switch",
		Hardware:  &core.HardwareDetail{Color: "neon", Accessories: []string{"dock"}},
		Quantity:  qty,
	}
}

func submit(t *testing.T, f *fixture, method core.ShippingMethod, approval core.ApprovalMethod, items ...buyback.ItemInput) core.BuybackApplication {
	t.Helper()
	app, err := f.svc.Submit(context.Background(), buyback.SubmitInput{
		CustomerID:     "cust-1",
		ShippingMethod: method,
		ApprovalMethod: approval,
		Items:          items,
	})
	require.NoError(t, err)
	return app
}

// toAssessing submits a self-shipped application and opens its assessment.
func toAssessing(t *testing.T, f *fixture, approval core.ApprovalMethod, items ...buyback.ItemInput) core.BuybackApplication {
	t.Helper()
	ctx := context.Background()
	app := submit(t, f, core.ShippingSelfShip, approval, items...)
	_, err := f.svc.MarkReceived(ctx, app.Number, march10)
	require.NoError(t, err)
	app, err = f.svc.BeginAssessment(ctx, app.Number)
	require.NoError(t, err)
	return app
}

func assessAll(t *testing.T, f *fixture, app core.BuybackApplication, rank core.Rank, price core.Money) core.BuybackApplication {
	t.Helper()
	var err error
	for _, it := range app.Items {
		app, err = f.svc.SetItemAssessment(context.Background(), app.Number, it.ID, rank, price)
		require.NoError(t, err)
	}
	return app
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_CreatesApplied(t *testing.T) {
	f := newFixture(t)
	app := submit(t, f, core.ShippingKit, "", switchItem(1))

	assert.Equal(t, core.BuybackApplied, app.Status)
	assert.Equal(t, core.ApprovalManual, app.ApprovalMethod, "defaults to manual approval")
	assert.Equal(t, core.ApplicationNumber("B20250310-0001"), app.Number)
	require.Len(t, app.Items, 1)
	assert.Equal(t, core.ItemHardware, app.Items[0].Kind)
	assert.NotEmpty(t, app.Items[0].ID)

	second := submit(t, f, core.ShippingKit, "", switchItem(1))
	assert.Equal(t, core.ApplicationNumber("B20250310-0002"), second.Number)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)

	rankC := switchItem(1)
	rankC.DeclaredRank = core.RankC
	untitled := buyback.ItemInput{ProductID: "zelda", Software: &core.SoftwareDetail{}, Quantity: 1}
	mismatch := buyback.ItemInput{ProductID: "switch", Software: &core.SoftwareDetail{Title: "x"}, Quantity: 1}
	numbers := switchItem(2)
	numbers.ManagementNumbers = []string{"YAMADA_N01_20250310_01"}

	tests := []struct {
		name  string
		in    buyback.SubmitInput
		field string
	}{
		{"no items", buyback.SubmitInput{CustomerID: "cust-1", ShippingMethod: core.ShippingKit}, "items"},
		{"zero quantity", buyback.SubmitInput{CustomerID: "cust-1", ShippingMethod: core.ShippingKit, Items: []buyback.ItemInput{switchItem(0)}}, "items[0].quantity"},
		{"bad shipping", buyback.SubmitInput{CustomerID: "cust-1", ShippingMethod: "drone", Items: []buyback.ItemInput{switchItem(1)}}, "shippingMethod"},
		{"unknown customer", buyback.SubmitInput{CustomerID: "nobody", ShippingMethod: core.ShippingKit, Items: []buyback.ItemInput{switchItem(1)}}, "customerId"},
		{"unknown product", buyback.SubmitInput{CustomerID: "cust-1", ShippingMethod: core.ShippingKit, Items: []buyback.ItemInput{{ProductID: "gamecube", Quantity: 1}}}, "items[0].productId"},
		{"rank C without notes", buyback.SubmitInput{CustomerID: "cust-1", ShippingMethod: core.ShippingKit, Items: []buyback.ItemInput{rankC}}, "items[0].conditionNotes"},
		{"software without title", buyback.SubmitInput{CustomerID: "cust-1", ShippingMethod: core.ShippingKit, Items: []buyback.ItemInput{untitled}}, "items[0].software.title"},
		{"variant mismatch", buyback.SubmitInput{CustomerID: "cust-1", ShippingMethod: core.ShippingKit, Items: []buyback.ItemInput{mismatch}}, "items[0].software"},
		{"number count", buyback.SubmitInput{CustomerID: "cust-1", ShippingMethod: core.ShippingKit, Items: []buyback.ItemInput{numbers}}, "items[0].managementNumbers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tt.in)

			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			fields := make([]string, len(verr.Problems))
			for i, p := range verr.Problems {
				fields[i] = p.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	apps, err := f.svc.List(context.Background(), core.BuybackFilter{})
	require.NoError(t, err)
	assert.Empty(t, apps, "rejected submissions write nothing")
}

// =============================================================================
// SHIPPING
// =============================================================================

func TestShipping_KitFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := submit(t, f, core.ShippingKit, "", switchItem(1))

	// Receiving before the kit went out is out of order
	_, err := f.svc.MarkReceived(ctx, app.Number, march10)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	app, err = f.svc.MarkShipped(ctx, app.Number, march10)
	require.NoError(t, err)
	assert.Equal(t, core.BuybackKitSent, app.Status)
	require.NotNil(t, app.ShippedAt)

	app, err = f.svc.MarkReceived(ctx, app.Number, march10.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, core.BuybackReceived, app.Status)

	// No state is re-enterable
	_, err = f.svc.MarkShipped(ctx, app.Number, march10)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestShipping_Pickup(t *testing.T) {
	f := newFixture(t)
	app := submit(t, f, core.ShippingPickup, "", switchItem(1))

	app, err := f.svc.MarkShipped(context.Background(), app.Number, march10)
	require.NoError(t, err)
	assert.Equal(t, core.BuybackPickupScheduled, app.Status)
}

func TestShipping_SelfShipSkipsOutbound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := submit(t, f, core.ShippingSelfShip, "", switchItem(1))

	_, err := f.svc.MarkShipped(ctx, app.Number, march10)
	var terr *core.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, string(core.BuybackApplied), terr.From)

	app, err = f.svc.MarkReceived(ctx, app.Number, march10)
	require.NoError(t, err)
	assert.Equal(t, core.BuybackReceived, app.Status)
}

func TestUnknownApplication(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BeginAssessment(context.Background(), "B-missing")
	assert.True(t, core.IsNotFound(err))
}

// =============================================================================
// ASSESSMENT
// =============================================================================

func TestSetItemAssessment_RequiresAssessing(t *testing.T) {
	f := newFixture(t)
	app := submit(t, f, core.ShippingKit, "", switchItem(1))

	_, err := f.svc.SetItemAssessment(context.Background(), app.Number, app.Items[0].ID, core.RankA, 1000)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestSetItemAssessment_AdoptsSuggestion(t *testing.T) {
	f := newFixture(t)
	app := toAssessing(t, f, "", switchItem(1))

	app, err := f.svc.SetItemAssessment(context.Background(), app.Number, app.Items[0].ID, core.RankA, 0)
	require.NoError(t, err)

	assert.Equal(t, core.RankA, app.Items[0].Rank)
	assert.Equal(t, core.Money(20000), app.Items[0].SuggestedPrice)
	assert.Equal(t, core.Money(20000), app.Items[0].UnitPrice)
}

func TestSetItemAssessment_ManualPriceKeepsSuggestion(t *testing.T) {
	f := newFixture(t)
	app := toAssessing(t, f, "", switchItem(1))

	app, err := f.svc.SetItemAssessment(context.Background(), app.Number, app.Items[0].ID, core.RankA, 18000)
	require.NoError(t, err)
	assert.Equal(t, core.Money(18000), app.Items[0].UnitPrice)
	assert.Equal(t, core.Money(20000), app.Items[0].SuggestedPrice)
}

func TestSetItemAssessment_InvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := toAssessing(t, f, "", switchItem(1))

	_, err := f.svc.SetItemAssessment(ctx, app.Number, app.Items[0].ID, "Z", 100)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.SetItemAssessment(ctx, app.Number, app.Items[0].ID, core.RankA, -1)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.SetItemAssessment(ctx, app.Number, "no-such-item", core.RankA, 100)
	assert.True(t, core.IsNotFound(err))
}

func TestConfirmAssessment_Incomplete(t *testing.T) {
	// GIVEN: Two items, only the first assessed
	ctx := context.Background()
	f := newFixture(t)
	app := toAssessing(t, f, "", switchItem(1), switchItem(1))
	_, err := f.svc.SetItemAssessment(ctx, app.Number, app.Items[0].ID, core.RankA, 10000)
	require.NoError(t, err)

	// WHEN: Confirming without an assessor
	_, err = f.svc.ConfirmAssessment(ctx, app.Number, " ")

	// THEN: The error lists everything that is missing
	var incomplete *core.IncompleteAssessmentError
	require.ErrorAs(t, err, &incomplete)
	assert.True(t, incomplete.MissingAssessor)
	assert.Equal(t, []core.ItemID{app.Items[1].ID}, incomplete.UnrankedItems)
	assert.Equal(t, []core.ItemID{app.Items[1].ID}, incomplete.UnpricedItems)

	got, err := f.svc.Get(ctx, app.Number)
	require.NoError(t, err)
	assert.Equal(t, core.BuybackAssessing, got.Status)
}

func TestConfirmAssessment_TotalPayableWithSelfShipBonus(t *testing.T) {
	// GIVEN: ¥10,000 × 1 and ¥5,000 × 2, self-shipped
	ctx := context.Background()
	f := newFixture(t)
	app := toAssessing(t, f, "", switchItem(1), switchItem(2))
	_, err := f.svc.SetItemAssessment(ctx, app.Number, app.Items[0].ID, core.RankA, 10000)
	require.NoError(t, err)
	_, err = f.svc.SetItemAssessment(ctx, app.Number, app.Items[1].ID, core.RankB, 5000)
	require.NoError(t, err)

	// WHEN: Confirming
	app, err = f.svc.ConfirmAssessment(ctx, app.Number, "X")

	// THEN: ¥20,500 awaiting a manual decision
	require.NoError(t, err)
	assert.Equal(t, core.Money(20500), app.TotalPayable)
	assert.Equal(t, core.BuybackAwaitingApproval, app.Status)
	assert.Equal(t, "X", app.Assessor)
	assert.NotNil(t, app.AssessedAt)
}

func TestConfirmAssessment_AutoApproval(t *testing.T) {
	f := newFixture(t)
	app := toAssessing(t, f, core.ApprovalAuto, switchItem(1))
	app = assessAll(t, f, app, core.RankA, 20000)

	app, err := f.svc.ConfirmAssessment(context.Background(), app.Number, "X")
	require.NoError(t, err)
	assert.Equal(t, core.BuybackAutoApproved, app.Status)
	assert.NotNil(t, app.DecidedAt)
}

func TestConfirmAssessment_RankCNeedsConditionNotes(t *testing.T) {
	// GIVEN: A console declared A, assessed C without notes
	ctx := context.Background()
	f := newFixture(t)
	app := toAssessing(t, f, "", switchItem(1), switchItem(1))
	_, err := f.svc.SetItemAssessment(ctx, app.Number, app.Items[0].ID, core.RankC, 4000)
	require.NoError(t, err)
	_, err = f.svc.SetItemAssessment(ctx, app.Number, app.Items[1].ID, core.RankA, 20000)
	require.NoError(t, err)

	// WHEN: Confirming
	_, err = f.svc.ConfirmAssessment(ctx, app.Number, "X")

	// THEN: Only the rank C item is reported and the application stays open
	var incomplete *core.IncompleteAssessmentError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []core.ItemID{app.Items[0].ID}, incomplete.UnnotedItems)
	assert.Empty(t, incomplete.UnrankedItems)
	assert.Empty(t, incomplete.UnpricedItems)
	assert.False(t, incomplete.MissingAssessor)
	assert.Contains(t, err.Error(), "condition notes")

	// WHEN: Blank notes are recorded
	_, err = f.svc.SetConditionNotes(ctx, app.Number, app.Items[0].ID, "   ")
	require.NoError(t, err)
	_, err = f.svc.ConfirmAssessment(ctx, app.Number, "X")

	// THEN: Still rejected
	require.ErrorAs(t, err, &incomplete)

	// WHEN: Real notes are recorded
	app, err = f.svc.SetConditionNotes(ctx, app.Number, app.Items[0].ID, " scratched screen ")
	require.NoError(t, err)
	assert.Equal(t, "scratched screen", app.Items[0].ConditionNotes)
	app, err = f.svc.ConfirmAssessment(ctx, app.Number, "X")

	// THEN: The assessment closes
	require.NoError(t, err)
	assert.Equal(t, core.BuybackAwaitingApproval, app.Status)
}

func TestSetConditionNotes_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Not yet assessing
	app := submit(t, f, core.ShippingSelfShip, "", switchItem(1))
	_, err := f.svc.SetConditionNotes(ctx, app.Number, app.Items[0].ID, "dent")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	// Unknown item
	app = toAssessing(t, f, "", switchItem(1))
	_, err = f.svc.SetConditionNotes(ctx, app.Number, "nope", "dent")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestApproveReject_OnlyFromAwaitingApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := toAssessing(t, f, "", switchItem(1))

	_, err := f.svc.Approve(ctx, app.Number)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	_, err = f.svc.Reject(ctx, app.Number, "too worn")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	app = assessAll(t, f, app, core.RankB, 8000)
	_, err = f.svc.ConfirmAssessment(ctx, app.Number, "X")
	require.NoError(t, err)

	app, err = f.svc.Reject(ctx, app.Number, " too worn ")
	require.NoError(t, err)
	assert.Equal(t, core.BuybackRejected, app.Status)
	assert.Equal(t, "too worn", app.RejectReason)

	// Rejected is terminal
	_, err = f.svc.Approve(ctx, app.Number)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	_, err = f.svc.CommitToInventory(ctx, app.Number, "staff")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

// =============================================================================
// COMMIT TO INVENTORY
// =============================================================================

func TestCommitToInventory_CreatesLotsAndNumbers(t *testing.T) {
	// GIVEN: An approved application with a console and a game
	ctx := context.Background()
	f := newFixture(t)
	game := buyback.ItemInput{ProductID: "zelda", Software: &core.SoftwareDetail{Title: "Zelda"}, Quantity: 1}
	app := toAssessing(t, f, "", switchItem(2), game)
	app = assessAll(t, f, app, core.RankA, 0)
	_, err := f.svc.ConfirmAssessment(ctx, app.Number, "X")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, app.Number)
	require.NoError(t, err)

	// WHEN: Committing
	app, err = f.svc.CommitToInventory(ctx, app.Number, "staff")
	require.NoError(t, err)

	// THEN: The console got generated numbers, the game stays untracked
	assert.Equal(t, core.BuybackInInventory, app.Status)
	assert.NotNil(t, app.InventoriedAt)
	assert.Equal(t, []string{"YAMADA_N01_20250310_01", "YAMADA_N01_20250310_02"}, app.Items[0].ManagementNumbers)
	assert.Empty(t, app.Items[1].ManagementNumbers)

	lots, err := f.ledger.Query(ctx, inventory.Filter{})
	require.NoError(t, err)
	require.Len(t, lots, 2)
	for _, lot := range lots {
		assert.True(t, lot.Consistent())
		assert.Equal(t, core.SourceCustomerBuyback, lot.Source.Kind)
		assert.Equal(t, core.CounterpartyID("cust-1"), lot.Source.CounterpartyID)
	}
	consoles, err := f.ledger.Query(ctx, inventory.Filter{ProductCode: "N01"})
	require.NoError(t, err)
	require.Len(t, consoles, 1)
	assert.Equal(t, core.Money(20000), consoles[0].UnitCost)
	assert.Equal(t, "neon", consoles[0].Color)
	assert.True(t, consoles[0].Tracked)

	hist, err := f.ledger.History(ctx, consoles[0].ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 2, hist[0].Delta)
	assert.Equal(t, buyback.IdempotencyKey(app.Number, app.Items[0].ID), hist[0].IdempotencyKey)

	var committed []events.Event
	for _, e := range f.seen {
		if e.Type == events.BuybackCommitted {
			committed = append(committed, e)
		}
	}
	require.Len(t, committed, 1)
	assert.Equal(t, 3, committed[0].Quantity)
}

func TestCommitToInventory_SecondCallRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app := toAssessing(t, f, core.ApprovalAuto, switchItem(1))
	app = assessAll(t, f, app, core.RankA, 20000)
	_, err := f.svc.ConfirmAssessment(ctx, app.Number, "X")
	require.NoError(t, err)
	_, err = f.svc.CommitToInventory(ctx, app.Number, "staff")
	require.NoError(t, err)

	_, err = f.svc.CommitToInventory(ctx, app.Number, "staff")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	lots, err := f.ledger.Query(ctx, inventory.Filter{})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, 1, lots[0].Quantity, "no double count")
}

func TestCommitToInventory_FailureRollsBack(t *testing.T) {
	// GIVEN: A supplied management number already held by another lot
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ledger.Add(ctx, inventory.AddInput{
		ProductID: "switch", Rank: core.RankB, Quantity: 1, UnitCost: 1,
		Source:            core.LotSource{Kind: core.SourceManual},
		ManagementNumbers: []string{"TAKEN_N01_20250301_01"},
	})
	require.NoError(t, err)

	first := switchItem(1)
	taken := switchItem(1)
	taken.ManagementNumbers = []string{"TAKEN_N01_20250301_01"}
	app := toAssessing(t, f, core.ApprovalAuto, first, taken)
	app = assessAll(t, f, app, core.RankA, 20000)
	_, err = f.svc.ConfirmAssessment(ctx, app.Number, "X")
	require.NoError(t, err)

	// WHEN: Committing
	_, err = f.svc.CommitToInventory(ctx, app.Number, "staff")

	// THEN: Nothing from this application reached inventory
	assert.ErrorIs(t, err, core.ErrValidation)
	got, err := f.svc.Get(ctx, app.Number)
	require.NoError(t, err)
	assert.Equal(t, core.BuybackAutoApproved, got.Status)
	assert.Empty(t, got.Items[0].ManagementNumbers)

	lots, err := f.ledger.Query(ctx, inventory.Filter{})
	require.NoError(t, err)
	assert.Len(t, lots, 1, "only the pre-existing lot")

	// The sequence reserved by the failed attempt was rolled back too
	next, err := f.store.NextSequence(ctx, identifier.Scope("YAMADA", "N01", march10), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestStatusEventsPublished(t *testing.T) {
	f := newFixture(t)
	app := toAssessing(t, f, "", switchItem(1))

	var transitions []string
	for _, e := range f.seen {
		if e.Type == events.BuybackStatusChanged && e.Subject == string(app.Number) {
			transitions = append(transitions, e.From+"->"+e.To)
		}
	}
	assert.Equal(t, []string{"->applied", "applied->received", "received->assessing"}, transitions)
}
