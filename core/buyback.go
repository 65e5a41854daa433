package core

import (
	"slices"
	"time"
)

// =============================================================================
// BUYBACK APPLICATION
// =============================================================================

type BuybackStatus string

const (
	BuybackApplied          BuybackStatus = "applied"
	BuybackKitSent          BuybackStatus = "kit_sent"
	BuybackPickupScheduled  BuybackStatus = "pickup_scheduled"
	BuybackReceived         BuybackStatus = "received"
	BuybackAssessing        BuybackStatus = "assessing"
	BuybackAwaitingApproval BuybackStatus = "awaiting_approval"
	BuybackAutoApproved     BuybackStatus = "auto_approved"
	BuybackApproved         BuybackStatus = "approved"
	BuybackInInventory      BuybackStatus = "in_inventory"
	BuybackRejected         BuybackStatus = "rejected"
)

// CanTransitionTo encodes the forward-only buyback graph. No state is
// re-enterable and in_inventory/rejected are terminal.
func (s BuybackStatus) CanTransitionTo(target BuybackStatus) bool {
	switch s {
	case BuybackApplied:
		return target == BuybackKitSent || target == BuybackPickupScheduled || target == BuybackReceived
	case BuybackKitSent, BuybackPickupScheduled:
		return target == BuybackReceived
	case BuybackReceived:
		return target == BuybackAssessing
	case BuybackAssessing:
		return target == BuybackAwaitingApproval || target == BuybackAutoApproved
	case BuybackAwaitingApproval:
		return target == BuybackApproved || target == BuybackRejected
	case BuybackAutoApproved, BuybackApproved:
		return target == BuybackInInventory
	}
	return false
}

type ShippingMethod string

const (
	ShippingKit      ShippingMethod = "kit"       // we mail a packing kit
	ShippingPickup   ShippingMethod = "pickup"    // courier collects
	ShippingSelfShip ShippingMethod = "self_ship" // customer ships on their own
)

func (m ShippingMethod) Valid() bool {
	return m == ShippingKit || m == ShippingPickup || m == ShippingSelfShip
}

type ApprovalMethod string

const (
	ApprovalManual ApprovalMethod = "manual"
	ApprovalAuto   ApprovalMethod = "auto"
)

// =============================================================================
// ITEMS - Tagged variant: exactly one of Hardware / Software is set
// =============================================================================

type ItemKind string

const (
	ItemHardware ItemKind = "hardware"
	ItemSoftware ItemKind = "software"
)

type HardwareDetail struct {
	Color       string
	Accessories []string
}

type SoftwareDetail struct {
	Title string
}

// BuybackItem is one line of an application.
type BuybackItem struct {
	ID                ItemID
	ProductID         ProductID
	Kind              ItemKind
	Hardware          *HardwareDetail
	Software          *SoftwareDetail
	DeclaredRank      Rank // customer's self-assessment, optional
	Quantity          int
	ManagementNumbers []string
	ConditionNotes    string

	// Assessment
	Rank           Rank
	UnitPrice      Money
	SuggestedPrice Money
}

// Variant returns the color for hardware or the title for software.
func (i BuybackItem) Variant() string {
	switch {
	case i.Hardware != nil:
		return i.Hardware.Color
	case i.Software != nil:
		return i.Software.Title
	}
	return ""
}

// Assessed reports whether rank and a positive price are set.
func (i BuybackItem) Assessed() bool {
	return i.Rank.Valid() && i.UnitPrice.IsPositive()
}

// BuybackApplication is one customer submission.
type BuybackApplication struct {
	Number         ApplicationNumber
	CustomerID     CounterpartyID
	ShippingMethod ShippingMethod
	ApprovalMethod ApprovalMethod
	Items          []BuybackItem
	Status         BuybackStatus
	Assessor       string
	TotalPayable   Money
	RejectReason   string

	SubmittedAt   time.Time
	ShippedAt     *time.Time
	ReceivedAt    *time.Time
	AssessedAt    *time.Time
	DecidedAt     *time.Time
	InventoriedAt *time.Time
	UpdatedAt     time.Time
	Version       int64
}

// Item returns a pointer into a.Items, or nil.
func (a *BuybackApplication) Item(id ItemID) *BuybackItem {
	for i := range a.Items {
		if a.Items[i].ID == id {
			return &a.Items[i]
		}
	}
	return nil
}

// Clone returns a deep copy.
func (a BuybackApplication) Clone() BuybackApplication {
	c := a
	c.Items = make([]BuybackItem, len(a.Items))
	for i, it := range a.Items {
		cp := it
		cp.ManagementNumbers = slices.Clone(it.ManagementNumbers)
		if it.Hardware != nil {
			hw := *it.Hardware
			hw.Accessories = slices.Clone(it.Hardware.Accessories)
			cp.Hardware = &hw
		}
		if it.Software != nil {
			sw := *it.Software
			cp.Software = &sw
		}
		c.Items[i] = cp
	}
	return c
}

// BuybackFilter narrows ListApplications.
type BuybackFilter struct {
	Status     BuybackStatus
	CustomerID CounterpartyID
}
