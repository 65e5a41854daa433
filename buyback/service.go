/*
service.go - Buyback workflow

PURPOSE:
  Drives a customer's buyback application from submission to inventory:

    applied ──▶ kit_sent | pickup_scheduled ──▶ received ──▶ assessing
       │                                           ▲            │
       └────────────── (self_ship) ────────────────┘            ▼
                                          awaiting_approval | auto_approved
                                            │         │           │
                                        rejected   approved ──▶ in_inventory

  Transitions only move forward. Every operation reads the application,
  checks its guard and writes it back inside one store unit; a guard failure
  writes nothing.

SEE ALSO:
  - assessment.go: ranking, pricing and the approval decision
  - intake.go: shipping steps and the inventory commit
  - core/buyback.go: the transition graph
*/
package buyback

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/events"
	"github.com/warp/console-buyback/identifier"
	"github.com/warp/console-buyback/inventory"
	"github.com/warp/console-buyback/pricing"
)

// DefaultSelfShipBonus is added to the payable total when the customer ships
// at their own cost.
const DefaultSelfShipBonus core.Money = 500

type Options struct {
	SelfShipBonus core.Money
	Publisher     events.Publisher
	Logger        *zap.Logger
	Clock         core.Clock
}

// Service is the BuybackWorkflow.
type Service struct {
	store   core.Store
	pricing *pricing.Engine
	ledger  *inventory.Ledger
	bonus   core.Money
	pub     events.Publisher
	logger  *zap.Logger
	clock   core.Clock
}

func NewService(store core.Store, engine *pricing.Engine, ledger *inventory.Ledger, opts Options) *Service {
	s := &Service{
		store:   store,
		pricing: engine,
		ledger:  ledger,
		bonus:   opts.SelfShipBonus,
		pub:     opts.Publisher,
		logger:  opts.Logger,
		clock:   opts.Clock,
	}
	if s.pub == nil {
		s.pub = events.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// =============================================================================
// SUBMIT
// =============================================================================

type ItemInput struct {
	ProductID         core.ProductID       `json:"productId" validate:"required"`
	Hardware          *core.HardwareDetail `json:"hardware"`
	Software          *core.SoftwareDetail `json:"software"`
	DeclaredRank      core.Rank            `json:"declaredRank" validate:"omitempty,oneof=S A B C"`
	Quantity          int                  `json:"quantity" validate:"min=1"`
	ManagementNumbers []string             `json:"managementNumbers"`
	ConditionNotes    string               `json:"conditionNotes"`
}

type SubmitInput struct {
	CustomerID     core.CounterpartyID `json:"customerId" validate:"required"`
	ShippingMethod core.ShippingMethod `json:"shippingMethod" validate:"required,oneof=kit pickup self_ship"`
	ApprovalMethod core.ApprovalMethod `json:"approvalMethod" validate:"omitempty,oneof=manual auto"`
	Items          []ItemInput         `json:"items" validate:"required,min=1,dive"`
}

// Submit records a new application in status applied.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (core.BuybackApplication, error) {
	if err := core.ValidateStruct(in); err != nil {
		return core.BuybackApplication{}, err
	}

	var app core.BuybackApplication
	err := s.store.WithTx(ctx, func(tx core.Store) error {
		if err := s.checkSubmission(ctx, tx, in); err != nil {
			return err
		}

		now := s.clock.Now()
		number, err := identifier.NewSequencer(tx).DocumentNumber(ctx, "B", now)
		if err != nil {
			return err
		}

		app = core.BuybackApplication{
			Number:         core.ApplicationNumber(number),
			CustomerID:     in.CustomerID,
			ShippingMethod: in.ShippingMethod,
			ApprovalMethod: in.ApprovalMethod,
			Status:         core.BuybackApplied,
			SubmittedAt:    now,
			UpdatedAt:      now,
		}
		if app.ApprovalMethod == "" {
			app.ApprovalMethod = core.ApprovalManual
		}
		for _, it := range in.Items {
			kind := core.ItemHardware
			if it.Software != nil {
				kind = core.ItemSoftware
			}
			app.Items = append(app.Items, core.BuybackItem{
				ID:                core.ItemID(uuid.NewString()),
				ProductID:         it.ProductID,
				Kind:              kind,
				Hardware:          it.Hardware,
				Software:          it.Software,
				DeclaredRank:      it.DeclaredRank,
				Quantity:          it.Quantity,
				ManagementNumbers: slices.Clone(it.ManagementNumbers),
				ConditionNotes:    it.ConditionNotes,
			})
		}
		return tx.PutApplication(ctx, &app)
	})
	if err != nil {
		return core.BuybackApplication{}, err
	}

	s.logger.Info("buyback submitted",
		zap.String("application", string(app.Number)),
		zap.String("customer", string(app.CustomerID)),
		zap.Int("items", len(app.Items)),
	)
	s.publishStatus(ctx, app, "")
	return app, nil
}

// checkSubmission enforces the rules struct tags can't express.
func (s *Service) checkSubmission(ctx context.Context, tx core.Store, in SubmitInput) error {
	v := &core.ValidationError{}

	if _, err := tx.GetCounterparty(ctx, in.CustomerID); err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		v.Add("customerId", "unknown counterparty %s", in.CustomerID)
	}

	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		product, err := tx.GetProduct(ctx, it.ProductID)
		if err != nil {
			if !core.IsNotFound(err) {
				return err
			}
			v.Add(field+".productId", "unknown product %s", it.ProductID)
			continue
		}

		switch product.Type {
		case core.ProductHardware:
			if it.Software != nil {
				v.Add(field+".software", "product %s is hardware", product.ID)
			}
		case core.ProductSoftware:
			if it.Hardware != nil {
				v.Add(field+".hardware", "product %s is software", product.ID)
			}
			if it.Software == nil || it.Software.Title == "" {
				v.Add(field+".software.title", "required for software")
			}
		}

		if it.DeclaredRank == core.RankC && it.ConditionNotes == "" {
			v.Add(field+".conditionNotes", "required for rank C")
		}
		if n := len(it.ManagementNumbers); n > 0 {
			if n != it.Quantity {
				v.Add(field+".managementNumbers", "%d numbers for quantity %d", n, it.Quantity)
			}
			for _, m := range it.ManagementNumbers {
				if !identifier.ValidManagementNumber(m) {
					v.Add(field+".managementNumbers", "malformed management number %q", m)
				}
			}
		}
	}
	return v.OrNil()
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, number core.ApplicationNumber) (core.BuybackApplication, error) {
	return s.store.GetApplication(ctx, number)
}

func (s *Service) List(ctx context.Context, f core.BuybackFilter) ([]core.BuybackApplication, error) {
	return s.store.ListApplications(ctx, f)
}

// =============================================================================
// TRANSITION PLUMBING
// =============================================================================

// step is one guarded mutation of an application inside a store unit.
type step func(ctx context.Context, tx core.Store, app *core.BuybackApplication, buf *events.Buffer) error

// mutate loads the application, runs fn and writes it back in one unit.
// Status events and anything fn buffered are published after commit.
func (s *Service) mutate(ctx context.Context, number core.ApplicationNumber, fn step) (core.BuybackApplication, error) {
	var app core.BuybackApplication
	var from core.BuybackStatus
	buf := &events.Buffer{}

	err := s.store.WithTx(ctx, func(tx core.Store) error {
		var err error
		if app, err = tx.GetApplication(ctx, number); err != nil {
			return err
		}
		from = app.Status
		if err := fn(ctx, tx, &app, buf); err != nil {
			return err
		}
		app.UpdatedAt = s.clock.Now()
		return tx.PutApplication(ctx, &app)
	})
	if err != nil {
		buf.Discard()
		return core.BuybackApplication{}, err
	}

	if app.Status != from {
		s.logger.Info("buyback status changed",
			zap.String("application", string(app.Number)),
			zap.String("from", string(from)),
			zap.String("to", string(app.Status)),
		)
		s.publishStatus(ctx, app, from)
	}
	buf.Flush(ctx, s.pub)
	return app, nil
}

func (s *Service) publishStatus(ctx context.Context, app core.BuybackApplication, from core.BuybackStatus) {
	s.pub.Publish(ctx, events.Event{
		Type:           events.BuybackStatusChanged,
		Subject:        string(app.Number),
		From:           string(from),
		To:             string(app.Status),
		CounterpartyID: app.CustomerID,
	})
}

// transition moves app to target if the graph allows it from one of the
// listed states.
func transition(app *core.BuybackApplication, action string, target core.BuybackStatus, allowed ...core.BuybackStatus) error {
	if !slices.Contains(allowed, app.Status) || !app.Status.CanTransitionTo(target) {
		return invalid(app, action)
	}
	app.Status = target
	return nil
}

func invalid(app *core.BuybackApplication, action string) error {
	return &core.InvalidTransitionError{
		Entity: "buyback",
		ID:     string(app.Number),
		From:   string(app.Status),
		Action: action,
	}
}
