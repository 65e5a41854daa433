/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Catalog:       ProductDTO, CounterpartyDTO
  Prices:        PriceTableDTO, AdjustmentDTO, PriceQuoteDTO
  Inventory:     LotDTO, HistoryEntryDTO, SummaryLineDTO
  Buyback:       ApplicationDTO, BuybackItemDTO
  Sales:         SalesRequestDTO, SalesItemDTO, AllocationDTO, MarginDTO
  Compliance:    ComplianceRecordDTO
  Errors:        ErrorResponse

VALIDATION:
  Request types carry `validate` tags checked by decode() through
  core.ValidateStruct. Workflow submissions reuse the workflow input types
  directly (buyback.SubmitInput, sales.SubmitInput).

DATES:
  Calendar dates are "2006-01-02", instants are RFC3339.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/pricesheet.go: price sheet and catalog JSON
*/
package api

import (
	"time"

	"github.com/warp/console-buyback/compliance"
	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/inventory"
	"github.com/warp/console-buyback/pricing"
	"github.com/warp/console-buyback/sales"
)

const dateLayout = "2006-01-02"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// =============================================================================
// CATALOG
// =============================================================================

// ProductDTO represents a catalog entry.
type ProductDTO struct {
	ID           string `json:"id"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	ReleaseYear  int    `json:"releaseYear,omitempty"`
	Code         string `json:"code"`
	ModelCode    string `json:"modelCode,omitempty"`
	Version      int64  `json:"version"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// PutProductRequest creates (version 0) or updates a product.
type PutProductRequest struct {
	ID           string `json:"id"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Name         string `json:"name" validate:"required"`
	Type         string `json:"type" validate:"required,oneof=hardware software"`
	ReleaseYear  int    `json:"releaseYear"`
	Code         string `json:"code"`
	ModelCode    string `json:"modelCode"`
	Version      int64  `json:"version"`
}

func toProductDTO(p core.Product) ProductDTO {
	return ProductDTO{
		ID:           string(p.ID),
		Manufacturer: string(p.Manufacturer),
		Model:        p.Model,
		Name:         p.Name,
		Type:         string(p.Type),
		ReleaseYear:  p.ReleaseYear,
		Code:         p.Code,
		ModelCode:    p.ModelCodeOverride,
		Version:      p.Version,
		UpdatedAt:    formatTime(p.UpdatedAt),
	}
}

// CounterpartyDTO represents a customer, buyer or supplier.
type CounterpartyDTO struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	NameKana   string `json:"nameKana,omitempty"`
	Address    string `json:"address,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	BirthDate  string `json:"birthDate,omitempty"`
	Country    string `json:"country,omitempty"`
	Version    int64  `json:"version"`
}

// PutCounterpartyRequest creates (version 0) or updates a counterparty.
type PutCounterpartyRequest struct {
	ID         string `json:"id"`
	Kind       string `json:"kind" validate:"required,oneof=customer buyer supplier"`
	Name       string `json:"name" validate:"required"`
	NameKana   string `json:"nameKana"`
	Address    string `json:"address"`
	Occupation string `json:"occupation"`
	BirthDate  string `json:"birthDate" validate:"omitempty,datetime=2006-01-02"`
	Country    string `json:"country"`
	Version    int64  `json:"version"`
}

func toCounterpartyDTO(c core.Counterparty) CounterpartyDTO {
	return CounterpartyDTO{
		ID:         string(c.ID),
		Kind:       string(c.Kind),
		Name:       c.Name,
		NameKana:   c.NameKana,
		Address:    c.Address,
		Occupation: c.Occupation,
		BirthDate:  formatDate(c.BirthDate),
		Country:    c.Country,
		Version:    c.Version,
	}
}

// ImportResponse reports how many catalog entries were written.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// =============================================================================
// PRICES
// =============================================================================

// PriceTableDTO is one direction's base table: code → rank → price.
type PriceTableDTO struct {
	Direction string                      `json:"direction"`
	Prices    map[string]map[string]int64 `json:"prices"`
}

func toPriceTableDTO(t core.PriceTable) PriceTableDTO {
	out := PriceTableDTO{Direction: string(t.Direction), Prices: make(map[string]map[string]int64, len(t.Prices))}
	for code, row := range t.Prices {
		r := make(map[string]int64, len(row))
		for rank, price := range row {
			r[string(rank)] = int64(price)
		}
		out.Prices[code] = r
	}
	return out
}

// SetPriceRequest sets one base price cell.
type SetPriceRequest struct {
	Price int64 `json:"price" validate:"gte=0"`
}

// AdjustmentDTO is a per-counterparty price adjustment.
type AdjustmentDTO struct {
	CounterpartyID string `json:"counterpartyId" validate:"required"`
	ProductCode    string `json:"productCode" validate:"required"`
	Kind           string `json:"kind" validate:"required,oneof=percentage fixed"`
	Value          int64  `json:"value"`
	Rank           string `json:"rank,omitempty" validate:"omitempty,oneof=S A B C"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
	UpdatedBy      string `json:"updatedBy,omitempty"`
}

func toAdjustmentDTO(a core.PriceAdjustment) AdjustmentDTO {
	dto := AdjustmentDTO{
		CounterpartyID: string(a.CounterpartyID),
		ProductCode:    a.ProductCode,
		Kind:           string(a.Kind),
		Value:          a.Value,
		UpdatedAt:      formatTime(a.UpdatedAt),
		UpdatedBy:      a.UpdatedBy,
	}
	if a.RankScope != nil {
		dto.Rank = string(*a.RankScope)
	}
	return dto
}

func (d AdjustmentDTO) toAdjustment() core.PriceAdjustment {
	adj := core.PriceAdjustment{
		CounterpartyID: core.CounterpartyID(d.CounterpartyID),
		ProductCode:    d.ProductCode,
		Kind:           core.AdjustmentKind(d.Kind),
		Value:          d.Value,
		UpdatedBy:      d.UpdatedBy,
	}
	if d.Rank != "" {
		r := core.Rank(d.Rank)
		adj.RankScope = &r
	}
	return adj
}

// PriceQuoteDTO is the outcome of ComputePrice.
type PriceQuoteDTO struct {
	BasePrice  int64          `json:"basePrice"`
	FinalPrice int64          `json:"finalPrice"`
	Adjustment *AdjustmentDTO `json:"adjustment,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

func toPriceQuoteDTO(r pricing.Result) PriceQuoteDTO {
	dto := PriceQuoteDTO{BasePrice: int64(r.BasePrice), FinalPrice: int64(r.FinalPrice), Reason: r.Reason}
	if r.Adjustment != nil {
		a := toAdjustmentDTO(*r.Adjustment)
		dto.Adjustment = &a
	}
	return dto
}

// =============================================================================
// INVENTORY
// =============================================================================

// LotDTO represents an inventory lot.
type LotDTO struct {
	ID                string   `json:"id"`
	ProductID         string   `json:"productId"`
	ProductCode       string   `json:"productCode"`
	Rank              string   `json:"rank"`
	Color             string   `json:"color,omitempty"`
	Quantity          int      `json:"quantity"`
	UnitCost          int64    `json:"unitCost"`
	SourceKind        string   `json:"sourceKind"`
	SourceParty       string   `json:"sourceCounterpartyId,omitempty"`
	SourceReference   string   `json:"sourceReference,omitempty"`
	Tracked           bool     `json:"tracked"`
	ManagementNumbers []string `json:"managementNumbers,omitempty"`
	CreatedAt         string   `json:"createdAt"`
	DepletedAt        string   `json:"depletedAt,omitempty"`
	Version           int64    `json:"version"`
}

func toLotDTO(l core.InventoryLot) LotDTO {
	return LotDTO{
		ID:                string(l.ID),
		ProductID:         string(l.ProductID),
		ProductCode:       l.ProductCode,
		Rank:              string(l.Rank),
		Color:             l.Color,
		Quantity:          l.Quantity,
		UnitCost:          int64(l.UnitCost),
		SourceKind:        string(l.Source.Kind),
		SourceParty:       string(l.Source.CounterpartyID),
		SourceReference:   l.Source.Reference,
		Tracked:           l.Tracked,
		ManagementNumbers: l.ManagementNumbers,
		CreatedAt:         formatTime(l.CreatedAt),
		DepletedAt:        formatTimePtr(l.DepletedAt),
		Version:           l.Version,
	}
}

// AddStockRequest adds supplier or manual stock outside the buyback flow.
type AddStockRequest struct {
	ProductID         string   `json:"productId" validate:"required"`
	Rank              string   `json:"rank" validate:"required,oneof=S A B C"`
	Color             string   `json:"color"`
	Quantity          int      `json:"quantity" validate:"min=1"`
	UnitCost          int64    `json:"unitCost" validate:"gte=0"`
	SourceKind        string   `json:"sourceKind" validate:"required,oneof=supplier manual"`
	CounterpartyID    string   `json:"counterpartyId"`
	SourceReference   string   `json:"sourceReference"`
	ManagementNumbers []string `json:"managementNumbers"`
	Actor             string   `json:"actor" validate:"required"`
	Reason            string   `json:"reason"`
	IdempotencyKey    string   `json:"idempotencyKey"`
}

// DepleteStockRequest removes stock for reasons other than a sale.
type DepleteStockRequest struct {
	Quantity          int      `json:"quantity" validate:"min=1"`
	ManagementNumbers []string `json:"managementNumbers"`
	Actor             string   `json:"actor" validate:"required"`
	Reason            string   `json:"reason" validate:"required"`
	IdempotencyKey    string   `json:"idempotencyKey"`
}

// HistoryEntryDTO is one immutable quantity change.
type HistoryEntryDTO struct {
	ID                string   `json:"id"`
	LotID             string   `json:"lotId"`
	Kind              string   `json:"kind"`
	Delta             int      `json:"delta"`
	Before            int      `json:"before"`
	After             int      `json:"after"`
	At                string   `json:"at"`
	Actor             string   `json:"actor,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	ReferenceKind     string   `json:"referenceKind,omitempty"`
	ReferenceID       string   `json:"referenceId,omitempty"`
	ManagementNumbers []string `json:"managementNumbers,omitempty"`
}

func toHistoryEntryDTO(e core.HistoryEntry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:                string(e.ID),
		LotID:             string(e.LotID),
		Kind:              string(e.Kind),
		Delta:             e.Delta,
		Before:            e.Before,
		After:             e.After,
		At:                formatTime(e.At),
		Actor:             e.Actor,
		Reason:            e.Reason,
		ReferenceKind:     string(e.Reference.Kind),
		ReferenceID:       e.Reference.ID,
		ManagementNumbers: e.ManagementNumbers,
	}
}

// SummaryLineDTO is active stock for one product and rank.
type SummaryLineDTO struct {
	ProductID   string `json:"productId"`
	ProductCode string `json:"productCode"`
	Rank        string `json:"rank"`
	Lots        int    `json:"lots"`
	Units       int    `json:"units"`
	Cost        int64  `json:"cost"`
}

func toSummaryLineDTO(l inventory.SummaryLine) SummaryLineDTO {
	return SummaryLineDTO{
		ProductID:   string(l.ProductID),
		ProductCode: l.ProductCode,
		Rank:        string(l.Rank),
		Lots:        l.Lots,
		Units:       l.Units,
		Cost:        int64(l.Cost),
	}
}

// =============================================================================
// BUYBACK
// =============================================================================

// BuybackItemDTO is one application line.
type BuybackItemDTO struct {
	ID                string   `json:"id"`
	ProductID         string   `json:"productId"`
	Kind              string   `json:"kind"`
	Variant           string   `json:"variant,omitempty"`
	Accessories       []string `json:"accessories,omitempty"`
	DeclaredRank      string   `json:"declaredRank,omitempty"`
	Quantity          int      `json:"quantity"`
	ManagementNumbers []string `json:"managementNumbers,omitempty"`
	ConditionNotes    string   `json:"conditionNotes,omitempty"`
	Rank              string   `json:"rank,omitempty"`
	UnitPrice         int64    `json:"unitPrice"`
	SuggestedPrice    int64    `json:"suggestedPrice"`
}

// ApplicationDTO represents a buyback application.
type ApplicationDTO struct {
	Number         string           `json:"number"`
	CustomerID     string           `json:"customerId"`
	ShippingMethod string           `json:"shippingMethod"`
	ApprovalMethod string           `json:"approvalMethod"`
	Status         string           `json:"status"`
	Items          []BuybackItemDTO `json:"items"`
	Assessor       string           `json:"assessor,omitempty"`
	TotalPayable   int64            `json:"totalPayable"`
	RejectReason   string           `json:"rejectReason,omitempty"`
	SubmittedAt    string           `json:"submittedAt"`
	ShippedAt      string           `json:"shippedAt,omitempty"`
	ReceivedAt     string           `json:"receivedAt,omitempty"`
	AssessedAt     string           `json:"assessedAt,omitempty"`
	DecidedAt      string           `json:"decidedAt,omitempty"`
	InventoriedAt  string           `json:"inventoriedAt,omitempty"`
	Version        int64            `json:"version"`
}

func toApplicationDTO(a core.BuybackApplication) ApplicationDTO {
	dto := ApplicationDTO{
		Number:         string(a.Number),
		CustomerID:     string(a.CustomerID),
		ShippingMethod: string(a.ShippingMethod),
		ApprovalMethod: string(a.ApprovalMethod),
		Status:         string(a.Status),
		Items:          make([]BuybackItemDTO, len(a.Items)),
		Assessor:       a.Assessor,
		TotalPayable:   int64(a.TotalPayable),
		RejectReason:   a.RejectReason,
		SubmittedAt:    formatTime(a.SubmittedAt),
		ShippedAt:      formatTimePtr(a.ShippedAt),
		ReceivedAt:     formatTimePtr(a.ReceivedAt),
		AssessedAt:     formatTimePtr(a.AssessedAt),
		DecidedAt:      formatTimePtr(a.DecidedAt),
		InventoriedAt:  formatTimePtr(a.InventoriedAt),
		Version:        a.Version,
	}
	for i, it := range a.Items {
		item := BuybackItemDTO{
			ID:                string(it.ID),
			ProductID:         string(it.ProductID),
			Kind:              string(it.Kind),
			Variant:           it.Variant(),
			DeclaredRank:      string(it.DeclaredRank),
			Quantity:          it.Quantity,
			ManagementNumbers: it.ManagementNumbers,
			ConditionNotes:    it.ConditionNotes,
			Rank:              string(it.Rank),
			UnitPrice:         int64(it.UnitPrice),
			SuggestedPrice:    int64(it.SuggestedPrice),
		}
		if it.Hardware != nil {
			item.Accessories = it.Hardware.Accessories
		}
		dto.Items[i] = item
	}
	return dto
}

// DateRequest carries the date of a shipping step. Empty means today.
type DateRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// AssessItemRequest ranks and prices one item; unitPrice 0 adopts the table.
type AssessItemRequest struct {
	Rank           string `json:"rank" validate:"required,oneof=S A B C"`
	UnitPrice      int64  `json:"unitPrice" validate:"gte=0"`
	ConditionNotes string `json:"conditionNotes"` // replaces the item's notes when set
}

// ActorRequest names who performs a step.
type ActorRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// RejectRequest carries the rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// =============================================================================
// SALES
// =============================================================================

// SalesItemDTO is one requested line.
type SalesItemDTO struct {
	ID             string `json:"id"`
	ProductID      string `json:"productId"`
	ProductCode    string `json:"productCode"`
	Quantity       int    `json:"quantity"`
	Rank           string `json:"rank,omitempty"`
	UnitPrice      int64  `json:"unitPrice"`
	BasePrice      int64  `json:"basePrice"`
	PriceSource    string `json:"priceSource,omitempty"`
	ManualOverride bool   `json:"manualOverride"`
	PriceNote      string `json:"priceNote,omitempty"`
	Allocated      int    `json:"allocated"`
}

// AllocationDTO ties part of an item to a lot.
type AllocationDTO struct {
	ItemID            string   `json:"itemId"`
	LotID             string   `json:"lotId"`
	Quantity          int      `json:"quantity"`
	UnitCost          int64    `json:"unitCost"`
	ManagementNumbers []string `json:"managementNumbers,omitempty"`
}

// SalesRequestDTO represents an overseas sales request.
type SalesRequestDTO struct {
	Number           string          `json:"number"`
	CounterpartyID   string          `json:"counterpartyId"`
	Notes            string          `json:"notes,omitempty"`
	Status           string          `json:"status"`
	Items            []SalesItemDTO  `json:"items"`
	Allocations      []AllocationDTO `json:"allocations"`
	ShippingFee      int64           `json:"shippingFee"`
	DeliveryEstimate string          `json:"deliveryEstimate,omitempty"`
	QuotedBy         string          `json:"quotedBy,omitempty"`
	TrackingNumber   string          `json:"trackingNumber,omitempty"`
	Revenue          int64           `json:"revenue"`
	AcquisitionCost  int64           `json:"acquisitionCost"`
	Profit           int64           `json:"profit"`
	SubmittedAt      string          `json:"submittedAt"`
	QuotedAt         string          `json:"quotedAt,omitempty"`
	DecidedAt        string          `json:"decidedAt,omitempty"`
	PaidAt           string          `json:"paidAt,omitempty"`
	ShippedAt        string          `json:"shippedAt,omitempty"`
	Version          int64           `json:"version"`
}

func toSalesRequestDTO(r core.SalesRequest) SalesRequestDTO {
	dto := SalesRequestDTO{
		Number:           string(r.Number),
		CounterpartyID:   string(r.CounterpartyID),
		Notes:            r.Notes,
		Status:           string(r.Status),
		Items:            make([]SalesItemDTO, len(r.Items)),
		Allocations:      make([]AllocationDTO, len(r.Allocations)),
		ShippingFee:      int64(r.ShippingFee),
		DeliveryEstimate: r.DeliveryEstimate,
		QuotedBy:         r.QuotedBy,
		TrackingNumber:   r.TrackingNumber,
		Revenue:          int64(r.Revenue),
		AcquisitionCost:  int64(r.AcquisitionCost),
		Profit:           int64(r.Profit),
		SubmittedAt:      formatTime(r.SubmittedAt),
		QuotedAt:         formatTimePtr(r.QuotedAt),
		DecidedAt:        formatTimePtr(r.DecidedAt),
		PaidAt:           formatTimePtr(r.PaidAt),
		ShippedAt:        formatTimePtr(r.ShippedAt),
		Version:          r.Version,
	}
	for i, it := range r.Items {
		dto.Items[i] = SalesItemDTO{
			ID:             string(it.ID),
			ProductID:      string(it.ProductID),
			ProductCode:    it.ProductCode,
			Quantity:       it.Quantity,
			Rank:           string(it.Rank),
			UnitPrice:      int64(it.UnitPrice),
			BasePrice:      int64(it.BasePrice),
			PriceSource:    string(it.PriceSource),
			ManualOverride: it.ManualOverride,
			PriceNote:      it.PriceNote,
			Allocated:      r.AllocatedQuantity(it.ID),
		}
	}
	for i, a := range r.Allocations {
		dto.Allocations[i] = AllocationDTO{
			ItemID:            string(a.ItemID),
			LotID:             string(a.LotID),
			Quantity:          a.Quantity,
			UnitCost:          int64(a.UnitCost),
			ManagementNumbers: a.ManagementNumbers,
		}
	}
	return dto
}

// ItemPriceRequest overrides one item's price.
type ItemPriceRequest struct {
	Rank  string `json:"rank" validate:"omitempty,oneof=S A B C"`
	Price int64  `json:"price" validate:"gt=0"`
	Note  string `json:"note"`
	Staff string `json:"staff" validate:"required"`
}

// QuoteRequest confirms a quote. Requirements are checked by the workflow so
// that every missing piece is reported together.
type QuoteRequest struct {
	ShippingFee      int64  `json:"shippingFee"`
	DeliveryEstimate string `json:"deliveryEstimate"`
	StaffID          string `json:"staffId"`
}

// AllocationRequest selects stock for one item; quantity 0 removes it.
type AllocationRequest struct {
	ItemID   string `json:"itemId" validate:"required"`
	LotID    string `json:"lotId" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// FulfillRequest ships a paid request.
type FulfillRequest struct {
	ShippedDate    string `json:"shippedDate" validate:"omitempty,datetime=2006-01-02"`
	TrackingNumber string `json:"trackingNumber"`
	Actor          string `json:"actor"`
}

// MarginDTO is the profit summary of one request.
type MarginDTO struct {
	Revenue int64  `json:"revenue"`
	Cost    int64  `json:"cost"`
	Profit  int64  `json:"profit"`
	Percent string `json:"percent"`
}

func toMarginDTO(m sales.Margin) MarginDTO {
	return MarginDTO{
		Revenue: int64(m.Revenue),
		Cost:    int64(m.Cost),
		Profit:  int64(m.Profit),
		Percent: m.Percent.StringFixed(2),
	}
}

// =============================================================================
// COMPLIANCE
// =============================================================================

// ComplianceRecordDTO is one register line.
type ComplianceRecordDTO struct {
	Date                string `json:"date"`
	Type                string `json:"type"`
	SKU                 string `json:"sku"`
	ManagementNumber    string `json:"managementNumber,omitempty"`
	ProductName         string `json:"productName"`
	Description         string `json:"description"`
	Rank                string `json:"rank"`
	Quantity            int    `json:"quantity"`
	Price               int64  `json:"price"`
	CounterpartyID      string `json:"counterpartyId"`
	CounterpartyName    string `json:"counterpartyName"`
	CounterpartyAddress string `json:"counterpartyAddress,omitempty"`
	Occupation          string `json:"occupation,omitempty"`
	Age                 int    `json:"age,omitempty"`
	ReferenceKind       string `json:"referenceKind"`
	ReferenceID         string `json:"referenceId"`
}

func toComplianceRecordDTO(r compliance.Record) ComplianceRecordDTO {
	return ComplianceRecordDTO{
		Date:                formatDate(r.Date),
		Type:                string(r.Type),
		SKU:                 r.SKU,
		ManagementNumber:    r.ManagementNumber,
		ProductName:         r.ProductName,
		Description:         r.Description,
		Rank:                string(r.Rank),
		Quantity:            r.Quantity,
		Price:               int64(r.Price),
		CounterpartyID:      string(r.CounterpartyID),
		CounterpartyName:    r.CounterpartyName,
		CounterpartyAddress: r.CounterpartyAddress,
		Occupation:          r.Occupation,
		Age:                 r.Age,
		ReferenceKind:       string(r.Reference.Kind),
		ReferenceID:         r.Reference.ID,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is every non-2xx body. Details lists the offending fields,
// lots or items when the error carries them.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Details string        `json:"details,omitempty"`
	Code    string        `json:"code,omitempty"`
	Items   []ErrorDetail `json:"items,omitempty"`
}

// ErrorDetail is one offending field, lot or item.
type ErrorDetail struct {
	Field     string `json:"field,omitempty"`
	Message   string `json:"message,omitempty"`
	LotID     string `json:"lotId,omitempty"`
	ItemID    string `json:"itemId,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Allocated int    `json:"allocated,omitempty"`
	Available int    `json:"available,omitempty"`
}
