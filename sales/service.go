/*
service.go - Sales workflow

PURPOSE:
  Turns an overseas buyer's request into a shipped order:

    pending ──▶ quoted ──▶ approved ──▶ payment_confirmed ──▶ shipped
                  │
                  └──▶ declined

  Quoting resolves a rank and price per item, allocation ties items to
  inventory lots, and Fulfill is the single commit point that depletes stock.

GUARDS:
  Every operation validates against a fresh read inside one store unit and
  writes nothing when a guard fails. Rows are versioned, so a refresh holding
  an old snapshot can't overwrite a newer edit.

SEE ALSO:
  - quote.go: AutoQuote, manual prices, ConfirmQuote and the decision
  - fulfillment.go: SelectAllocation, Fulfill, Margin
  - requote.go: refreshes pending quotes on price changes
*/
package sales

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

type Options struct {
	Publisher events.Publisher
	Logger    *zap.Logger
	Clock     core.Clock
}

// Service is the SalesWorkflow.
type Service struct {
	store   core.Store
	pricing *pricing.Engine
	ledger  *inventory.Ledger
	pub     events.Publisher
	logger  *zap.Logger
	clock   core.Clock
}

func NewService(store core.Store, engine *pricing.Engine, ledger *inventory.Ledger, opts Options) *Service {
	s := &Service{
		store:   store,
		pricing: engine,
		ledger:  ledger,
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
	ProductID core.ProductID `json:"productId" validate:"required"`
	Quantity  int            `json:"quantity" validate:"min=1"`
}

type SubmitInput struct {
	CounterpartyID core.CounterpartyID `json:"counterpartyId" validate:"required"`
	Items          []ItemInput         `json:"items" validate:"required,min=1,dive"`
	Notes          string              `json:"notes"`
}

// Submit records a request in status pending. Items carry no rank or price
// yet.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (core.SalesRequest, error) {
	if err := core.ValidateStruct(in); err != nil {
		return core.SalesRequest{}, err
	}

	var req core.SalesRequest
	err := s.store.WithTx(ctx, func(tx core.Store) error {
		v := &core.ValidationError{}
		if _, err := tx.GetCounterparty(ctx, in.CounterpartyID); err != nil {
			if !core.IsNotFound(err) {
				return err
			}
			v.Add("counterpartyId", "unknown counterparty %s", in.CounterpartyID)
		}

		items := make([]core.SalesItem, 0, len(in.Items))
		for i, it := range in.Items {
			product, err := tx.GetProduct(ctx, it.ProductID)
			if err != nil {
				if !core.IsNotFound(err) {
					return err
				}
				v.Add(fmt.Sprintf("items[%d].productId", i), "unknown product %s", it.ProductID)
				continue
			}
			items = append(items, core.SalesItem{
				ID:          core.ItemID(uuid.NewString()),
				ProductID:   product.ID,
				ProductCode: product.Code,
				Quantity:    it.Quantity,
			})
		}
		if err := v.OrNil(); err != nil {
			return err
		}

		now := s.clock.Now()
		number, err := identifier.NewSequencer(tx).DocumentNumber(ctx, "S", now)
		if err != nil {
			return err
		}
		req = core.SalesRequest{
			Number:         core.RequestNumber(number),
			CounterpartyID: in.CounterpartyID,
			Notes:          in.Notes,
			Items:          items,
			Status:         core.SalesPending,
			SubmittedAt:    now,
			UpdatedAt:      now,
		}
		return tx.PutSalesRequest(ctx, &req)
	})
	if err != nil {
		return core.SalesRequest{}, err
	}

	s.logger.Info("sales request submitted",
		zap.String("request", string(req.Number)),
		zap.String("counterparty", string(req.CounterpartyID)),
		zap.Int("items", len(req.Items)),
	)
	s.publishStatus(ctx, req, "")
	return req, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, number core.RequestNumber) (core.SalesRequest, error) {
	return s.store.GetSalesRequest(ctx, number)
}

func (s *Service) List(ctx context.Context, f core.SalesFilter) ([]core.SalesRequest, error) {
	return s.store.ListSalesRequests(ctx, f)
}

// =============================================================================
// TRANSITION PLUMBING
// =============================================================================

type step func(ctx context.Context, tx core.Store, req *core.SalesRequest, buf *events.Buffer) error

// mutate loads the request, runs fn and writes it back in one unit. Events
// are published only after commit.
func (s *Service) mutate(ctx context.Context, number core.RequestNumber, fn step) (core.SalesRequest, error) {
	var req core.SalesRequest
	var from core.SalesStatus
	buf := &events.Buffer{}

	err := s.store.WithTx(ctx, func(tx core.Store) error {
		var err error
		if req, err = tx.GetSalesRequest(ctx, number); err != nil {
			return err
		}
		from = req.Status
		if err := fn(ctx, tx, &req, buf); err != nil {
			return err
		}
		req.UpdatedAt = s.clock.Now()
		return tx.PutSalesRequest(ctx, &req)
	})
	if err != nil {
		buf.Discard()
		return core.SalesRequest{}, err
	}

	if req.Status != from {
		s.logger.Info("sales status changed",
			zap.String("request", string(req.Number)),
			zap.String("from", string(from)),
			zap.String("to", string(req.Status)),
		)
		s.publishStatus(ctx, req, from)
	}
	buf.Flush(ctx, s.pub)
	return req, nil
}

func (s *Service) publishStatus(ctx context.Context, req core.SalesRequest, from core.SalesStatus) {
	s.pub.Publish(ctx, events.Event{
		Type:           events.SalesStatusChanged,
		Subject:        string(req.Number),
		From:           string(from),
		To:             string(req.Status),
		CounterpartyID: req.CounterpartyID,
	})
}

func transition(req *core.SalesRequest, action string, target core.SalesStatus, allowed ...core.SalesStatus) error {
	if !slices.Contains(allowed, req.Status) || !req.Status.CanTransitionTo(target) {
		return invalid(req, action)
	}
	req.Status = target
	return nil
}

func invalid(req *core.SalesRequest, action string) error {
	return &core.InvalidTransitionError{
		Entity: "sales",
		ID:     string(req.Number),
		From:   string(req.Status),
		Action: action,
	}
}
