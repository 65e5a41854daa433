package core

import (
	"slices"
	"time"
)

// =============================================================================
// SALES REQUEST
// =============================================================================

type SalesStatus string

const (
	SalesPending          SalesStatus = "pending"
	SalesQuoted           SalesStatus = "quoted"
	SalesApproved         SalesStatus = "approved"
	SalesPaymentConfirmed SalesStatus = "payment_confirmed"
	SalesShipped          SalesStatus = "shipped"
	SalesDeclined         SalesStatus = "declined"
)

// CanTransitionTo encodes the forward-only sales graph.
func (s SalesStatus) CanTransitionTo(target SalesStatus) bool {
	switch s {
	case SalesPending:
		return target == SalesQuoted
	case SalesQuoted:
		return target == SalesApproved || target == SalesDeclined
	case SalesApproved:
		return target == SalesPaymentConfirmed
	case SalesPaymentConfirmed:
		return target == SalesShipped
	}
	return false
}

type PriceSource string

const (
	PriceFromTable  PriceSource = "table"
	PriceFromManual PriceSource = "manual"
)

// SalesItem is one requested line. Rank is resolved when quoting.
type SalesItem struct {
	ID          ItemID
	ProductID   ProductID
	ProductCode string
	Quantity    int
	Rank        Rank

	UnitPrice      Money
	BasePrice      Money
	PriceSource    PriceSource
	ManualOverride bool // set by staff; auto-quoting leaves the price alone
	PriceNote      string
	PricedAt       *time.Time
}

// Allocation ties part of an item to a lot.
type Allocation struct {
	ItemID            ItemID
	LotID             LotID
	Quantity          int
	UnitCost          Money
	ManagementNumbers []string // filled on fulfilment
}

// SalesRequest is one overseas buyer order.
type SalesRequest struct {
	Number           RequestNumber
	CounterpartyID   CounterpartyID
	Notes            string
	Items            []SalesItem
	ShippingFee      Money
	DeliveryEstimate string
	QuotedBy         string
	Status           SalesStatus
	Allocations      []Allocation

	TrackingNumber  string
	Revenue         Money
	AcquisitionCost Money
	Profit          Money

	SubmittedAt time.Time
	QuotedAt    *time.Time
	DecidedAt   *time.Time
	PaidAt      *time.Time
	ShippedAt   *time.Time
	UpdatedAt   time.Time
	Version     int64
}

func (r *SalesRequest) Item(id ItemID) *SalesItem {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i]
		}
	}
	return nil
}

// AllocatedQuantity sums allocations for an item.
func (r SalesRequest) AllocatedQuantity(id ItemID) int {
	total := 0
	for _, a := range r.Allocations {
		if a.ItemID == id {
			total += a.Quantity
		}
	}
	return total
}

// HasProductCode reports whether any line is for code.
func (r SalesRequest) HasProductCode(code string) bool {
	return slices.ContainsFunc(r.Items, func(it SalesItem) bool { return it.ProductCode == code })
}

// Clone returns a deep copy.
func (r SalesRequest) Clone() SalesRequest {
	c := r
	c.Items = slices.Clone(r.Items)
	c.Allocations = make([]Allocation, len(r.Allocations))
	for i, a := range r.Allocations {
		a.ManagementNumbers = slices.Clone(a.ManagementNumbers)
		c.Allocations[i] = a
	}
	return c
}

// SalesFilter narrows ListSalesRequests.
type SalesFilter struct {
	Status         SalesStatus
	CounterpartyID CounterpartyID
}
