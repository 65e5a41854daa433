/*
workflows.go - Buyback and sales workflow endpoints

ENDPOINTS:
  Buyback:
    GET    /api/buyback                                  List (?status&customer)
    POST   /api/buyback                                  Submit application
    GET    /api/buyback/{number}                         Get application
    POST   /api/buyback/{number}/shipped                 Customer shipped
    POST   /api/buyback/{number}/received                Goods received
    POST   /api/buyback/{number}/assess                  Begin assessment
    PUT    /api/buyback/{number}/items/{itemId}/assessment Rank and price an item
    POST   /api/buyback/{number}/confirm-assessment      Confirm (assessor required)
    POST   /api/buyback/{number}/approve                 Customer approved
    POST   /api/buyback/{number}/reject                  Customer rejected
    POST   /api/buyback/{number}/commit                  Commit to inventory

  Sales:
    GET    /api/sales                                    List (?status&counterparty)
    POST   /api/sales                                    Submit request
    GET    /api/sales/{number}                           Get request
    POST   /api/sales/{number}/auto-quote                Price items from stock and tables
    PUT    /api/sales/{number}/items/{itemId}/price      Manual price override
    DELETE /api/sales/{number}/items/{itemId}/price      Drop the override
    POST   /api/sales/{number}/quote                     Confirm quote
    POST   /api/sales/{number}/approve                   Buyer approved
    POST   /api/sales/{number}/decline                   Buyer declined
    POST   /api/sales/{number}/payment                   Payment received
    PUT    /api/sales/{number}/allocations               Select stock for an item
    POST   /api/sales/{number}/fulfill                   Ship and deplete stock
    GET    /api/sales/{number}/margin                    Revenue, cost and profit

STATE GUARDS:
  The services enforce the state machines. A step out of order is a 422 with
  code "invalid_transition"; the body names the current status.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/console-buyback/buyback"
	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/sales"
)

// =============================================================================
// BUYBACK HANDLERS
// =============================================================================

func applicationParam(r *http.Request) core.ApplicationNumber {
	return core.ApplicationNumber(chi.URLParam(r, "number"))
}

func (h *Handler) writeApplication(w http.ResponseWriter, r *http.Request, status int, app core.BuybackApplication, err error) {
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, toApplicationDTO(app))
}

// ListApplications returns applications, newest first.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	apps, err := h.Buyback.List(r.Context(), core.BuybackFilter{
		Status:     core.BuybackStatus(q.Get("status")),
		CustomerID: core.CounterpartyID(q.Get("customer")),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		dtos[i] = toApplicationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SubmitApplication records a new application. The service validates the
// body and the referenced customer and products.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var in buyback.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	app, err := h.Buyback.Submit(r.Context(), in)
	h.writeApplication(w, r, http.StatusCreated, app, err)
}

// GetApplication returns one application.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Buyback.Get(r.Context(), applicationParam(r))
	h.writeApplication(w, r, http.StatusOK, app, err)
}

// MarkShipped records that the customer sent the goods (self-ship) or the
// kit/pickup left. An empty date means today.
func (h *Handler) MarkShipped(w http.ResponseWriter, r *http.Request) {
	var req DateRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	date, _ := h.dateOrToday(req.Date)
	app, err := h.Buyback.MarkShipped(r.Context(), applicationParam(r), date)
	h.writeApplication(w, r, http.StatusOK, app, err)
}

// MarkReceived records arrival at the shop.
func (h *Handler) MarkReceived(w http.ResponseWriter, r *http.Request) {
	var req DateRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	date, _ := h.dateOrToday(req.Date)
	app, err := h.Buyback.MarkReceived(r.Context(), applicationParam(r), date)
	h.writeApplication(w, r, http.StatusOK, app, err)
}

// BeginAssessment moves a received application into assessment.
func (h *Handler) BeginAssessment(w http.ResponseWriter, r *http.Request) {
	app, err := h.Buyback.BeginAssessment(r.Context(), applicationParam(r))
	h.writeApplication(w, r, http.StatusOK, app, err)
}

// AssessItem sets one item's rank and unit price, and its condition notes when given.
func (h *Handler) AssessItem(w http.ResponseWriter, r *http.Request) {
	var req AssessItemRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.ConditionNotes != "" {
		if _, err := h.Buyback.SetConditionNotes(r.Context(), applicationParam(r), itemParam(r), req.ConditionNotes); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	app, err := h.Buyback.SetItemAssessment(r.Context(), applicationParam(r), itemParam(r),
		core.Rank(req.Rank), core.Money(req.UnitPrice))
	h.writeApplication(w, r, http.StatusOK, app, err)
}

// ConfirmAssessment fixes the assessed prices. Missing pieces are listed in
// the 422 body.
func (h *Handler) ConfirmAssessment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assessor string `json:"assessor"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	app, err := h.Buyback.ConfirmAssessment(r.Context(), applicationParam(r), req.Assessor)
	h.writeApplication(w, r, http.StatusOK, app, err)
}

// ApproveApplication records the customer's acceptance.
func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Buyback.Approve(r.Context(), applicationParam(r))
	h.writeApplication(w, r, http.StatusOK, app, err)
}

// RejectApplication records the customer's refusal.
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	app, err := h.Buyback.Reject(r.Context(), applicationParam(r), req.Reason)
	h.writeApplication(w, r, http.StatusOK, app, err)
}

// CommitApplication adds the approved items to inventory.
func (h *Handler) CommitApplication(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := decode(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	app, err := h.Buyback.CommitToInventory(r.Context(), applicationParam(r), req.Actor)
	h.writeApplication(w, r, http.StatusOK, app, err)
}

// =============================================================================
// SALES HANDLERS
// =============================================================================

func requestParam(r *http.Request) core.RequestNumber {
	return core.RequestNumber(chi.URLParam(r, "number"))
}

func (h *Handler) writeSalesRequest(w http.ResponseWriter, r *http.Request, status int, req core.SalesRequest, err error) {
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, toSalesRequestDTO(req))
}

// ListSalesRequests returns requests, newest first.
func (h *Handler) ListSalesRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reqs, err := h.Sales.List(r.Context(), core.SalesFilter{
		Status:         core.SalesStatus(q.Get("status")),
		CounterpartyID: core.CounterpartyID(q.Get("counterparty")),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]SalesRequestDTO, len(reqs))
	for i, req := range reqs {
		dtos[i] = toSalesRequestDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SubmitSalesRequest records a buyer's request.
func (h *Handler) SubmitSalesRequest(w http.ResponseWriter, r *http.Request) {
	var in sales.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req, err := h.Sales.Submit(r.Context(), in)
	h.writeSalesRequest(w, r, http.StatusCreated, req, err)
}

// GetSalesRequest returns one request.
func (h *Handler) GetSalesRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Sales.Get(r.Context(), requestParam(r))
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// AutoQuote resolves ranks from stock and prices from the resale table.
func (h *Handler) AutoQuote(w http.ResponseWriter, r *http.Request) {
	req, err := h.Sales.AutoQuote(r.Context(), requestParam(r))
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// SetItemPrice overrides one item's price.
func (h *Handler) SetItemPrice(w http.ResponseWriter, r *http.Request) {
	var body ItemPriceRequest
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req, err := h.Sales.SetItemPrice(r.Context(), requestParam(r), itemParam(r), sales.ManualPrice{
		Rank:  core.Rank(body.Rank),
		Price: core.Money(body.Price),
		Note:  body.Note,
		Staff: body.Staff,
	})
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// ClearItemPrice returns an item to automatic pricing.
func (h *Handler) ClearItemPrice(w http.ResponseWriter, r *http.Request) {
	req, err := h.Sales.ClearItemPrice(r.Context(), requestParam(r), itemParam(r))
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// ConfirmQuote fixes the quote. Every unmet requirement is listed at once.
func (h *Handler) ConfirmQuote(w http.ResponseWriter, r *http.Request) {
	var body QuoteRequest
	if err := decodeJSON(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req, err := h.Sales.ConfirmQuote(r.Context(), requestParam(r), sales.QuoteInput{
		ShippingFee:      core.Money(body.ShippingFee),
		DeliveryEstimate: body.DeliveryEstimate,
		StaffID:          body.StaffID,
	})
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// ApproveSalesRequest records the buyer's acceptance.
func (h *Handler) ApproveSalesRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Sales.Approve(r.Context(), requestParam(r))
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// DeclineSalesRequest records the buyer's refusal.
func (h *Handler) DeclineSalesRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Sales.Decline(r.Context(), requestParam(r))
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// ConfirmPayment records the buyer's payment.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	req, err := h.Sales.ConfirmPayment(r.Context(), requestParam(r))
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// SelectAllocation sets how much of a lot backs an item.
func (h *Handler) SelectAllocation(w http.ResponseWriter, r *http.Request) {
	var body AllocationRequest
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req, err := h.Sales.SelectAllocation(r.Context(), requestParam(r),
		core.ItemID(body.ItemID), core.LotID(body.LotID), body.Quantity)
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// Fulfill ships the request and depletes the allocated lots.
func (h *Handler) Fulfill(w http.ResponseWriter, r *http.Request) {
	var body FulfillRequest
	if err := decode(r, &body); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	shipped, _ := h.dateOrToday(body.ShippedDate)
	req, err := h.Sales.Fulfill(r.Context(), requestParam(r), sales.FulfillInput{
		ShippedDate:    shipped,
		TrackingNumber: body.TrackingNumber,
		Actor:          body.Actor,
	})
	h.writeSalesRequest(w, r, http.StatusOK, req, err)
}

// GetMargin reports revenue, acquisition cost and profit.
func (h *Handler) GetMargin(w http.ResponseWriter, r *http.Request) {
	m, err := h.Sales.Margin(r.Context(), requestParam(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarginDTO(m))
}
