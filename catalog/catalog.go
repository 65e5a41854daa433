/*
catalog.go - Products and counterparties

PURPOSE:
  The write path for reference data. Products get their product code from
  the identifier package unless the caller supplies one, and a code can't
  change while active stock still carries it. Counterparties are validated
  against what compliance records need.

SEE ALSO:
  - identifier/identifier.go: ProductCode
  - factory/pricesheet.go: ParseCatalog, bulk import feeding Import
*/
package catalog

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/identifier"
)

type Service struct {
	store  core.Store
	logger *zap.Logger
	clock  core.Clock
}

func NewService(store core.Store, logger *zap.Logger, clock core.Clock) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, clock: clock}
}

// =============================================================================
// PRODUCTS
// =============================================================================

func validateProduct(p core.Product) error {
	v := &core.ValidationError{}
	if p.ID == "" {
		v.Add("id", "required")
	}
	if strings.TrimSpace(p.Name) == "" {
		v.Add("name", "required")
	}
	if !p.Type.Valid() {
		v.Add("type", "unknown product type %q", p.Type)
	}
	if p.ModelCodeOverride != "" && (len(p.ModelCodeOverride) != 2 || !isDigits(p.ModelCodeOverride)) {
		v.Add("modelCodeOverride", "must be two digits, got %q", p.ModelCodeOverride)
	}
	if p.Code != "" && !identifier.ValidProductCode(p.Code) {
		v.Add("code", "malformed product code %q", p.Code)
	}
	return v.OrNil()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PutProduct creates or edits a product. p.Version must match the stored
// version (0 to create); it is incremented on success.
func (s *Service) PutProduct(ctx context.Context, p *core.Product) error {
	if p.Manufacturer == "" {
		p.Manufacturer = core.ManufacturerOther
	}
	if err := validateProduct(*p); err != nil {
		return err
	}
	if p.Code == "" {
		p.Code = identifier.ProductCode(p.Manufacturer, p.Type, p.Model, p.ModelCodeOverride)
	}

	err := s.store.WithTx(ctx, func(tx core.Store) error {
		cur, err := tx.GetProduct(ctx, p.ID)
		switch {
		case core.IsNotFound(err):
		case err != nil:
			return err
		case cur.Code != p.Code:
			if err := codeNotInUse(ctx, tx, cur); err != nil {
				return err
			}
		}
		p.UpdatedAt = s.clock.Now()
		return tx.PutProduct(ctx, p)
	})
	if err != nil {
		return err
	}

	s.logger.Info("product saved",
		zap.String("product", string(p.ID)),
		zap.String("code", p.Code),
		zap.Int64("version", p.Version),
	)
	return nil
}

func codeNotInUse(ctx context.Context, tx core.Store, cur core.Product) error {
	lots, err := tx.ListLots(ctx, core.LotFilter{ProductID: cur.ID})
	if err != nil {
		return err
	}
	if len(lots) > 0 {
		return core.NewValidationError("code", "product %s code %s is held by %d active lots", cur.ID, cur.Code, len(lots))
	}
	return nil
}

func (s *Service) Product(ctx context.Context, id core.ProductID) (core.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) Products(ctx context.Context) ([]core.Product, error) {
	return s.store.ListProducts(ctx)
}

// =============================================================================
// COUNTERPARTIES
// =============================================================================

func validateCounterparty(c core.Counterparty) error {
	v := &core.ValidationError{}
	if c.ID == "" {
		v.Add("id", "required")
	}
	if strings.TrimSpace(c.Name) == "" {
		v.Add("name", "required")
	}
	switch c.Kind {
	case core.CounterpartyCustomer:
		// Acquisition records need identity, address, occupation and age.
		if strings.TrimSpace(c.Address) == "" {
			v.Add("address", "required for customers")
		}
		if strings.TrimSpace(c.Occupation) == "" {
			v.Add("occupation", "required for customers")
		}
		if c.BirthDate.IsZero() {
			v.Add("birthDate", "required for customers")
		}
	case core.CounterpartyBuyer, core.CounterpartySupplier:
	default:
		v.Add("kind", "unknown counterparty kind %q", c.Kind)
	}
	return v.OrNil()
}

func (s *Service) PutCounterparty(ctx context.Context, c *core.Counterparty) error {
	if err := validateCounterparty(*c); err != nil {
		return err
	}
	if err := s.store.PutCounterparty(ctx, c); err != nil {
		return err
	}
	s.logger.Info("counterparty saved",
		zap.String("counterparty", string(c.ID)),
		zap.String("kind", string(c.Kind)),
		zap.String("code", identifier.CounterpartyCode(c.CodeName())),
	)
	return nil
}

func (s *Service) Counterparty(ctx context.Context, id core.CounterpartyID) (core.Counterparty, error) {
	return s.store.GetCounterparty(ctx, id)
}

func (s *Service) Counterparties(ctx context.Context) ([]core.Counterparty, error) {
	return s.store.ListCounterparties(ctx)
}

// Import saves products in order. It stops at the first failure and returns
// how many were saved before it.
func (s *Service) Import(ctx context.Context, products []core.Product) (int, error) {
	for i := range products {
		if err := s.PutProduct(ctx, &products[i]); err != nil {
			return i, fmt.Errorf("product %d (%s): %w", i, products[i].ID, err)
		}
	}
	return len(products), nil
}
