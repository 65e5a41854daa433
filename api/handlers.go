/*
handlers.go - HTTP API handlers for the buyback and resale engine

PURPOSE:
  Exposes the catalog, pricing, inventory and compliance services via REST
  API. Handles HTTP request/response, JSON serialization, and delegates to
  domain logic. Workflow endpoints live in workflows.go.

ENDPOINTS:
  Catalog:
    GET    /api/products                       List products
    POST   /api/products                       Create product
    POST   /api/products/import                Import catalog JSON
    GET    /api/products/{id}                  Get product
    PUT    /api/products/{id}                  Update product (versioned)
    GET    /api/counterparties                 List counterparties
    POST   /api/counterparties                 Create counterparty
    GET    /api/counterparties/{id}            Get counterparty
    PUT    /api/counterparties/{id}            Update counterparty (versioned)

  Prices:
    GET    /api/prices/quote                   ComputePrice (?direction&code&rank&counterparty)
    POST   /api/prices/import                  Apply a price sheet (?actor)
    GET    /api/prices/{direction}             Base price table
    PUT    /api/prices/{direction}/{code}/{rank} Set one base price
    GET    /api/adjustments                    List adjustments (?counterparty)
    PUT    /api/adjustments                    Create or replace an adjustment
    DELETE /api/adjustments/{counterparty}/{code} Remove an adjustment

  Inventory:
    GET    /api/inventory/lots                 Query lots
    POST   /api/inventory/lots                 Add supplier/manual stock
    GET    /api/inventory/lots/{id}            Get lot
    GET    /api/inventory/lots/{id}/history    Lot history
    POST   /api/inventory/lots/{id}/deplete    Manual depletion
    GET    /api/inventory/summary              Units and cost per product/rank

  Compliance:
    GET    /api/compliance/records             Register (?from&to&type)

  Admin:
    GET    /api/admin/auto-commit/runs         Scheduler run history
    POST   /api/admin/auto-commit              Commit auto-approved applications now

  Scenarios (development only):
    GET    /api/scenarios                      List demo scenarios
    POST   /api/scenarios/load                 Load a demo scenario

ARCHITECTURE:
  Handler struct holds the services. Every unit of work goes through the
  services, so handlers never touch the store directly.

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (decode runs the `validate` tags)
  3. Call domain logic
  4. Serialize response
  5. Handle errors (writeDomainError)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (stale version, duplicate idempotency key)
  - 422: Business rule violations (transition, stock, allocation, assessment)
  - 500: Internal errors
  Structured errors list the offending fields, lots or items in "items".

SECURITY NOTE:
  No authentication or authorization. Actor names are taken from requests.

SEE ALSO:
  - dto.go: Request/response data structures
  - workflows.go: Buyback and sales endpoints
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/console-buyback/buyback"
	"github.com/warp/console-buyback/catalog"
	"github.com/warp/console-buyback/compliance"
	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/factory"
	"github.com/warp/console-buyback/inventory"
	"github.com/warp/console-buyback/pricing"
	"github.com/warp/console-buyback/sales"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Services groups the engine components the handlers delegate to.
type Services struct {
	Catalog    *catalog.Service
	Pricing    *pricing.Engine
	Inventory  *inventory.Ledger
	Buyback    *buyback.Service
	Sales      *sales.Service
	Compliance *compliance.Ledger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services
	Factory   *factory.Factory
	Scheduler *AutoCommitScheduler // optional, serves the admin endpoints
	Logger    *zap.Logger
	Clock     core.Clock
}

// NewHandler creates a handler over the given services.
func NewHandler(svc Services, logger *zap.Logger, clock core.Clock) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = core.SystemClock
	}
	return &Handler{Services: svc, Factory: factory.New(), Logger: logger, Clock: clock}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns the whole catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.Products(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Product(r.Context(), core.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// CreateProduct adds a product. The body must carry an id.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req PutProductRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.ID == "" {
		h.writeDomainError(w, r, core.NewValidationError("id", "required"))
		return
	}
	req.Version = 0
	h.putProduct(w, r, core.ProductID(req.ID), req, http.StatusCreated)
}

// UpdateProduct replaces a product. The body's version must match the stored
// one; its id is ignored in favor of the path.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req PutProductRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.putProduct(w, r, core.ProductID(chi.URLParam(r, "id")), req, http.StatusOK)
}

func (h *Handler) putProduct(w http.ResponseWriter, r *http.Request, id core.ProductID, req PutProductRequest, status int) {
	p := core.Product{
		ID:                id,
		Manufacturer:      core.ParseManufacturer(req.Manufacturer),
		Model:             req.Model,
		Name:              req.Name,
		Type:              core.ProductType(req.Type),
		ReleaseYear:       req.ReleaseYear,
		Code:              req.Code,
		ModelCodeOverride: req.ModelCode,
		Version:           req.Version,
	}
	if err := h.Catalog.PutProduct(r.Context(), &p); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, toProductDTO(p))
}

// ImportProducts loads a catalog JSON array.
func (h *Handler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	products, err := h.Factory.ParseCatalog(string(body))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	n, err := h.Catalog.Import(r.Context(), products)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n})
}

// =============================================================================
// COUNTERPARTY HANDLERS
// =============================================================================

// ListCounterparties returns customers, buyers and suppliers.
func (h *Handler) ListCounterparties(w http.ResponseWriter, r *http.Request) {
	cps, err := h.Catalog.Counterparties(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	kind := r.URL.Query().Get("kind")
	dtos := make([]CounterpartyDTO, 0, len(cps))
	for _, c := range cps {
		if kind != "" && string(c.Kind) != kind {
			continue
		}
		dtos = append(dtos, toCounterpartyDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCounterparty returns one counterparty.
func (h *Handler) GetCounterparty(w http.ResponseWriter, r *http.Request) {
	c, err := h.Catalog.Counterparty(r.Context(), core.CounterpartyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCounterpartyDTO(c))
}

// CreateCounterparty adds a counterparty. The body must carry an id.
func (h *Handler) CreateCounterparty(w http.ResponseWriter, r *http.Request) {
	var req PutCounterpartyRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.ID == "" {
		h.writeDomainError(w, r, core.NewValidationError("id", "required"))
		return
	}
	req.Version = 0
	h.putCounterparty(w, r, core.CounterpartyID(req.ID), req, http.StatusCreated)
}

// UpdateCounterparty replaces a counterparty.
func (h *Handler) UpdateCounterparty(w http.ResponseWriter, r *http.Request) {
	var req PutCounterpartyRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.putCounterparty(w, r, core.CounterpartyID(chi.URLParam(r, "id")), req, http.StatusOK)
}

func (h *Handler) putCounterparty(w http.ResponseWriter, r *http.Request, id core.CounterpartyID, req PutCounterpartyRequest, status int) {
	c := core.Counterparty{
		ID:         id,
		Kind:       core.CounterpartyKind(req.Kind),
		Name:       req.Name,
		NameKana:   req.NameKana,
		Address:    req.Address,
		Occupation: req.Occupation,
		Country:    req.Country,
		Version:    req.Version,
	}
	if req.BirthDate != "" {
		// Format already checked by the datetime tag.
		c.BirthDate, _ = time.Parse(dateLayout, req.BirthDate)
	}
	if err := h.Catalog.PutCounterparty(r.Context(), &c); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, toCounterpartyDTO(c))
}

// =============================================================================
// PRICE HANDLERS
// =============================================================================

func parseDirection(s string) (core.PriceDirection, error) {
	d := core.PriceDirection(s)
	if !d.Valid() {
		return "", core.NewValidationError("direction", "must be buyback or resale, got %q", s)
	}
	return d, nil
}

// GetPriceTable returns one direction's base prices.
func (h *Handler) GetPriceTable(w http.ResponseWriter, r *http.Request) {
	dir, err := parseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	table, err := h.Pricing.Table(r.Context(), dir)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceTableDTO(table))
}

// SetBasePrice sets one cell of a base table.
func (h *Handler) SetBasePrice(w http.ResponseWriter, r *http.Request) {
	dir, err := parseDirection(chi.URLParam(r, "direction"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	rank, err := core.ParseRank(chi.URLParam(r, "rank"))
	if err != nil {
		h.writeDomainError(w, r, core.NewValidationError("rank", "%v", err))
		return
	}
	var req SetPriceRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.Pricing.SetBasePrice(r.Context(), dir, code, rank, core.Money(req.Price)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportPriceSheet applies a price sheet: the base table for one direction
// plus its adjustments.
func (h *Handler) ImportPriceSheet(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	sheet, err := h.Factory.ParsePriceSheet(string(body))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := sheet.Apply(r.Context(), h.Pricing, r.URL.Query().Get("actor")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceTableDTO(sheet.Table))
}

// QuotePrice runs ComputePrice. A missing base price is a 200 with
// finalPrice 0 and a reason.
func (h *Handler) QuotePrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dir, err := parseDirection(q.Get("direction"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	rank, err := core.ParseRank(q.Get("rank"))
	if err != nil {
		h.writeDomainError(w, r, core.NewValidationError("rank", "%v", err))
		return
	}
	res, err := h.Pricing.ComputePrice(r.Context(), pricing.Query{
		Direction:      dir,
		ProductCode:    q.Get("code"),
		Rank:           rank,
		CounterpartyID: core.CounterpartyID(q.Get("counterparty")),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceQuoteDTO(res))
}

// ListAdjustments returns adjustments, optionally for one counterparty.
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	adjs, err := h.Pricing.Adjustments(r.Context(), core.CounterpartyID(r.URL.Query().Get("counterparty")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AdjustmentDTO, len(adjs))
	for i, a := range adjs {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutAdjustment creates or replaces the adjustment for a counterparty and code.
func (h *Handler) PutAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentDTO
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	adj := req.toAdjustment()
	if err := h.Pricing.SetAdjustment(r.Context(), adj); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdjustmentDTO(adj))
}

// DeleteAdjustment removes an adjustment.
func (h *Handler) DeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	cp := core.CounterpartyID(chi.URLParam(r, "counterparty"))
	if err := h.Pricing.RemoveAdjustment(r.Context(), cp, chi.URLParam(r, "code")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListLots queries lots: ?product, ?code, ?rank, ?manufacturer, ?q and
// ?depleted=true.
func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := inventory.Filter{
		ProductID:       core.ProductID(q.Get("product")),
		ProductCode:     q.Get("code"),
		Manufacturer:    core.Manufacturer(q.Get("manufacturer")),
		Search:          q.Get("q"),
		IncludeDepleted: q.Get("depleted") == "true",
	}
	if s := q.Get("rank"); s != "" {
		rank, err := core.ParseRank(s)
		if err != nil {
			h.writeDomainError(w, r, core.NewValidationError("rank", "%v", err))
			return
		}
		f.Rank = rank
	}
	lots, err := h.Inventory.Query(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]LotDTO, len(lots))
	for i, l := range lots {
		dtos[i] = toLotDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLot returns one lot.
func (h *Handler) GetLot(w http.ResponseWriter, r *http.Request) {
	lot, err := h.Inventory.Lot(r.Context(), core.LotID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLotDTO(lot))
}

// GetLotHistory returns a lot's history, oldest first.
func (h *Handler) GetLotHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Inventory.History(r.Context(), core.LotID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toHistoryEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddStock records supplier or manual stock. Returns 201 for a new lot and
// 200 when merged into an existing one.
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	var req AddStockRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.Inventory.Add(r.Context(), inventory.AddInput{
		ProductID: core.ProductID(req.ProductID),
		Rank:      core.Rank(req.Rank),
		Color:     req.Color,
		Quantity:  req.Quantity,
		UnitCost:  core.Money(req.UnitCost),
		Source: core.LotSource{
			Kind:           core.SourceKind(req.SourceKind),
			CounterpartyID: core.CounterpartyID(req.CounterpartyID),
			Reference:      req.SourceReference,
		},
		ManagementNumbers: req.ManagementNumbers,
		Actor:             req.Actor,
		Reason:            req.Reason,
		Reference:         core.Reference{Kind: core.RefManual, ID: req.SourceReference},
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Merged {
		status = http.StatusOK
	}
	writeJSON(w, status, toLotDTO(res.Lot))
}

// DepleteStock removes stock from a lot for a reason other than a sale.
func (h *Handler) DepleteStock(w http.ResponseWriter, r *http.Request) {
	var req DepleteStockRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	id := core.LotID(chi.URLParam(r, "id"))
	res, err := h.Inventory.Deplete(r.Context(), inventory.DepleteInput{
		LotID:             id,
		Quantity:          req.Quantity,
		ManagementNumbers: req.ManagementNumbers,
		Actor:             req.Actor,
		Reason:            req.Reason,
		Reference:         core.Reference{Kind: core.RefManual, ID: string(id)},
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLotDTO(res.Lot))
}

// GetStockSummary returns active units and cost per product and rank.
func (h *Handler) GetStockSummary(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Inventory.Summary(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]SummaryLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toSummaryLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COMPLIANCE HANDLERS
// =============================================================================

// ListComplianceRecords reconstructs the register for ?from and ?to
// (inclusive days) and ?type (acquisition or disposition).
func (h *Handler) ListComplianceRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := &core.ValidationError{}
	var f compliance.Filter
	var err error
	if f.From, err = parseOptionalDate(q.Get("from")); err != nil {
		v.Add("from", "must be YYYY-MM-DD")
	}
	if f.To, err = parseOptionalDate(q.Get("to")); err != nil {
		v.Add("to", "must be YYYY-MM-DD")
	}
	switch typ := compliance.RecordType(q.Get("type")); typ {
	case "", compliance.Acquisition, compliance.Disposition:
		f.Type = typ
	default:
		v.Add("type", "must be acquisition or disposition, got %q", typ)
	}
	if err := v.OrNil(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	records, err := h.Compliance.Reconstruct(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]ComplianceRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toComplianceRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads the body into dst without validating it. An empty body
// leaves dst at its zero value.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return core.NewValidationError("body", "invalid JSON: %v", err)
	}
	return nil
}

// decode reads the body into dst and runs its `validate` tags.
func decode(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	return core.ValidateStruct(dst)
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// dateOrToday parses a YYYY-MM-DD value, defaulting to the clock's day.
func (h *Handler) dateOrToday(s string) (time.Time, error) {
	if s == "" {
		return h.Clock.Now(), nil
	}
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConcurrentModification),
		errors.Is(err, core.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrInsufficientStock),
		errors.Is(err, core.ErrOverAllocation),
		errors.Is(err, core.ErrAllocationMismatch),
		errors.Is(err, core.ErrIncompleteAssessment):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// errorCode names the error category for clients that branch on it.
func errorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrValidation):
		return "validation"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, core.ErrDuplicateIdempotencyKey):
		return "duplicate_idempotency_key"
	case errors.Is(err, core.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, core.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, core.ErrOverAllocation):
		return "over_allocation"
	case errors.Is(err, core.ErrAllocationMismatch):
		return "allocation_mismatch"
	case errors.Is(err, core.ErrIncompleteAssessment):
		return "incomplete_assessment"
	}
	return "internal"
}

// errorItems flattens the details carried by structured errors.
func errorItems(err error) []ErrorDetail {
	var (
		verr  *core.ValidationError
		stock *core.InsufficientStockError
		over  *core.OverAllocationError
		gap   *core.AllocationMismatchError
		inc   *core.IncompleteAssessmentError
	)
	var items []ErrorDetail
	switch {
	case errors.As(err, &verr):
		for _, p := range verr.Problems {
			items = append(items, ErrorDetail{Field: p.Field, Message: p.Message})
		}
	case errors.As(err, &stock):
		for _, s := range stock.Shortages {
			items = append(items, ErrorDetail{LotID: string(s.LotID), Available: s.Available, Requested: s.Requested})
		}
	case errors.As(err, &over):
		items = append(items, ErrorDetail{ItemID: string(over.ItemID), Requested: over.Requested, Allocated: over.Allocated})
	case errors.As(err, &gap):
		for _, g := range gap.Items {
			items = append(items, ErrorDetail{ItemID: string(g.ItemID), Requested: g.Requested, Allocated: g.Allocated})
		}
	case errors.As(err, &inc):
		if inc.MissingAssessor {
			items = append(items, ErrorDetail{Field: "assessor", Message: "required"})
		}
		for _, id := range inc.UnrankedItems {
			items = append(items, ErrorDetail{ItemID: string(id), Field: "rank", Message: "required"})
		}
		for _, id := range inc.UnpricedItems {
			items = append(items, ErrorDetail{ItemID: string(id), Field: "unitPrice", Message: "required"})
		}
		for _, id := range inc.UnnotedItems {
			items = append(items, ErrorDetail{ItemID: string(id), Field: "conditionNotes", Message: "required for rank C"})
		}
	}
	return items
}

// writeDomainError maps err to a status and writes an ErrorResponse.
// Internal errors are logged and their text withheld.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{
		Error: http.StatusText(status),
		Code:  errorCode(err),
		Items: errorItems(err),
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func itemParam(r *http.Request) core.ItemID {
	return core.ItemID(chi.URLParam(r, "itemId"))
}
