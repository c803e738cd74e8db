package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/teranga-pos/api/internal/billing"
	"github.com/teranga-pos/api/internal/cart"
	"github.com/teranga-pos/api/internal/checkout"
	"github.com/teranga-pos/api/internal/database"
	"github.com/teranga-pos/api/internal/enum"
	"github.com/teranga-pos/api/internal/metrics"
	"github.com/teranga-pos/api/internal/middleware"
	"github.com/teranga-pos/api/internal/service"
	"github.com/teranga-pos/api/internal/ws"
)

// CheckoutStore defines the database lookups checkout handlers need.
// Satisfied by *database.Queries; narrow interface for testability.
type CheckoutStore interface {
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	GetBeneficiaryByBadge(ctx context.Context, arg database.GetBeneficiaryByBadgeParams) (database.Beneficiary, error)
}

// Broadcaster pushes settlement events to connected terminals. Satisfied by
// *ws.Hub.
type Broadcaster interface {
	BroadcastToOutlet(outletID uuid.UUID, event ws.Event)
}

// EventPublisher forwards settlement events to the message broker for
// downstream consumers (kitchen displays, accounting exports). Satisfied by
// *events.Publisher; may be nil when no broker is configured.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// CheckoutHandler drives the checkout state machine over HTTP.
type CheckoutHandler struct {
	machine   *checkout.Machine
	store     CheckoutStore
	hub       Broadcaster
	publisher EventPublisher
	metrics   *metrics.Metrics
}

func NewCheckoutHandler(machine *checkout.Machine, store CheckoutStore, hub Broadcaster, publisher EventPublisher, m *metrics.Metrics) *CheckoutHandler {
	return &CheckoutHandler{machine: machine, store: store, hub: hub, publisher: publisher, metrics: m}
}

// RegisterRoutes registers checkout endpoints. Expected to be mounted inside
// an outlet-scoped subrouter: /outlets/{oid}/checkout/{scope}
func (h *CheckoutHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.State)
	r.Post("/preview", h.Preview)
	r.Post("/cancel", h.Cancel)
	r.Post("/pay", h.Pay)
	r.Post("/split", h.Split)
	r.Get("/split-suggestion", h.SplitSuggestion)
	r.Post("/room-charge", h.RoomCharge)
	r.Post("/subsidy", h.Subsidy)
	r.Post("/transfer", h.Transfer)
}

// --- Request / Response types ---

type previewRequest struct {
	TableID       string `json:"table_id"`
	ServiceMode   string `json:"service_mode"`
	DiscountType  string `json:"discount_type"`
	DiscountValue string `json:"discount_value"`
	ReleaseTable  bool   `json:"release_table"`
}

type payRequest struct {
	Payments []paymentInputRequest `json:"payments"`
}

type paymentInputRequest struct {
	Method         string `json:"method"`
	Amount         int64  `json:"amount"`
	AmountReceived int64  `json:"amount_received"`
}

type splitRequest struct {
	Parts []splitPartRequest `json:"parts"`
}

type splitPartRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method"`
}

type roomChargeRequest struct {
	RoomNumber       string `json:"room_number"`
	SignaturePresent bool   `json:"signature_present"`
	StrokeCount      int32  `json:"stroke_count"`
}

type subsidyRequest struct {
	BadgeCode string `json:"badge_code"`
}

type transferRequest struct {
	DestinationTableID string `json:"destination_table_id"`
}

type settlementResponse struct {
	Order    orderResponse     `json:"order"`
	Invoices []invoiceResponse `json:"invoices"`
	Payments []paymentResponse `json:"payments"`
	// Remaining credit after a subsidized settlement.
	CreditBalance *int64 `json:"credit_balance,omitempty"`
}

type orderResponse struct {
	ID             uuid.UUID           `json:"id"`
	OrderNumber    string              `json:"order_number"`
	TableID        *string             `json:"table_id"`
	ServiceMode    string              `json:"service_mode"`
	SettlementKind string              `json:"settlement_kind"`
	Status         string              `json:"status"`
	Subtotal       int64               `json:"subtotal"`
	DiscountAmount int64               `json:"discount_amount"`
	ServiceCharge  int64               `json:"service_charge"`
	TaxAmount      int64               `json:"tax_amount"`
	TotalAmount    int64               `json:"total_amount"`
	Items          []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int32     `json:"quantity"`
	LineTotal int64     `json:"line_total"`
}

type invoiceResponse struct {
	ID            uuid.UUID `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	Amount        int64     `json:"amount"`
}

type paymentResponse struct {
	ID             uuid.UUID `json:"id"`
	Method         string    `json:"method"`
	Amount         int64     `json:"amount"`
	AmountReceived *int64    `json:"amount_received"`
	ChangeAmount   *int64    `json:"change_amount"`
	Status         string    `json:"status"`
}

// --- Handlers ---

// State handles GET /outlets/{oid}/checkout/{scope}.
func (h *CheckoutHandler) State(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"state": string(h.machine.State(outletID, scope)),
	})
}

// Preview handles POST /outlets/{oid}/checkout/{scope}/preview. Freezes the
// cart and returns the computed bill.
func (h *CheckoutHandler) Preview(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	in := checkout.PreviewInput{
		ServiceMode:  req.ServiceMode,
		CreatedBy:    claims.StaffID,
		ReleaseTable: req.ReleaseTable,
	}
	if in.ServiceMode == "" {
		in.ServiceMode = enum.ServiceModeTable
	}
	if req.TableID != "" {
		tableID, err := uuid.Parse(req.TableID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table_id"})
			return
		}
		in.TableID = tableID
	} else if tableID, ok := tableIDFromScope(scope); ok {
		in.TableID = tableID
	}

	outlet, err := h.store.GetOutlet(r.Context(), outletID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "outlet not found"})
			return
		}
		log.Printf("ERROR: get outlet: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	in.Rates = billing.Rates{
		ServiceChargeRate: rateToDecimal(outlet.ServiceChargeRate),
		TaxRate:           rateToDecimal(outlet.TaxRate),
	}

	if req.DiscountType != "" {
		if req.DiscountType != enum.DiscountTypePercentage && req.DiscountType != enum.DiscountTypeFixed {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount_type"})
			return
		}
		value, err := decimal.NewFromString(req.DiscountValue)
		if err != nil || value.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount_value"})
			return
		}
		in.DiscountType = req.DiscountType
		in.DiscountValue = value
		in.Rates.DiscountType = req.DiscountType
		in.Rates.DiscountValue = value
	}

	preview, err := h.machine.OpenPreview(outletID, scope, in)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// Cancel handles POST /outlets/{oid}/checkout/{scope}/cancel. The cart
// thaws with its contents intact.
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}
	if err := h.machine.Cancel(outletID, scope); err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(checkout.StateIdle)})
}

// Pay handles POST /outlets/{oid}/checkout/{scope}/pay.
func (h *CheckoutHandler) Pay(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Payments) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payments are required"})
		return
	}

	payments := make([]service.PaymentInput, len(req.Payments))
	for i, p := range req.Payments {
		payments[i] = service.PaymentInput{
			Method:         p.Method,
			Amount:         p.Amount,
			AmountReceived: p.AmountReceived,
		}
	}

	start := time.Now()
	res, err := h.machine.Pay(r.Context(), outletID, scope, payments)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	h.finish(r.Context(), outletID, res, enum.SettlementSingle, start)

	writeJSON(w, http.StatusOK, toSettlementResponse(res))
}

// Split handles POST /outlets/{oid}/checkout/{scope}/split.
func (h *CheckoutHandler) Split(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}

	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Parts) < 2 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least two parts are required"})
		return
	}

	parts := make([]service.SplitPart, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = service.SplitPart{Amount: p.Amount, Method: p.Method}
	}

	start := time.Now()
	res, err := h.machine.PaySplit(r.Context(), outletID, scope, parts)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	h.finish(r.Context(), outletID, res, enum.SettlementSplit, start)

	writeJSON(w, http.StatusOK, toSettlementResponse(res))
}

// SplitSuggestion handles GET /outlets/{oid}/checkout/{scope}/split-suggestion?ways=N.
// Returns equal parts that sum back to the grand total exactly; earlier
// payers absorb the remainder.
func (h *CheckoutHandler) SplitSuggestion(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}

	ways, err := strconv.Atoi(r.URL.Query().Get("ways"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ways"})
		return
	}

	total, ok := h.machine.PreviewTotal(outletID, scope)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no bill preview open for this scope"})
		return
	}

	amounts, err := billing.SplitEqual(total, ways)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"total": total, "amounts": amounts})
}

// RoomCharge handles POST /outlets/{oid}/checkout/{scope}/room-charge.
func (h *CheckoutHandler) RoomCharge(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}

	var req roomChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.RoomNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "room_number is required"})
		return
	}

	start := time.Now()
	res, err := h.machine.ChargeRoom(r.Context(), outletID, scope, req.RoomNumber, req.SignaturePresent, req.StrokeCount)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	h.finish(r.Context(), outletID, res, enum.SettlementRoomCharge, start)

	writeJSON(w, http.StatusOK, toSettlementResponse(res))
}

// Subsidy handles POST /outlets/{oid}/checkout/{scope}/subsidy. The badge
// identifies the beneficiary; the program share depends on their category.
func (h *CheckoutHandler) Subsidy(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}

	var req subsidyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.BadgeCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "badge_code is required"})
		return
	}

	ben, err := h.store.GetBeneficiaryByBadge(r.Context(), database.GetBeneficiaryByBadgeParams{
		OutletID:  outletID,
		BadgeCode: req.BadgeCode,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "beneficiary not found"})
			return
		}
		log.Printf("ERROR: get beneficiary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	start := time.Now()
	res, err := h.machine.PaySubsidized(r.Context(), outletID, scope, ben.ID, ben.Category)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	h.finish(r.Context(), outletID, res, enum.SettlementSubsidized, start)

	resp := toSettlementResponse(res)
	if res.Beneficiary != nil {
		resp.CreditBalance = &res.Beneficiary.CreditBalance
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transfer handles POST /outlets/{oid}/checkout/{scope}/transfer.
func (h *CheckoutHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	dstTableID, err := uuid.Parse(req.DestinationTableID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid destination_table_id"})
		return
	}

	if err := h.machine.Transfer(r.Context(), outletID, scope, dstTableID); err != nil {
		writeCheckoutError(w, err)
		return
	}

	if h.hub != nil {
		h.broadcast(outletID, "table.transferred", map[string]string{
			"from_scope":           scope,
			"destination_table_id": dstTableID.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"state":                string(checkout.StateIdle),
		"destination_table_id": dstTableID.String(),
	})
}

// --- Helpers ---

// finish fans a successful settlement out to observers. Failures here are
// logged and swallowed: the settlement is already durable.
func (h *CheckoutHandler) finish(ctx context.Context, outletID uuid.UUID, res *service.Result, kind string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveSettlement(kind, res.Order.TotalAmount, time.Since(start))
	}
	if h.hub != nil {
		h.broadcast(outletID, "order.settled", toSettlementResponse(res))
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, "order.settled", toSettlementResponse(res)); err != nil {
			log.Printf("ERROR: publish order.settled: %v", err)
		}
	}
}

func (h *CheckoutHandler) broadcast(outletID uuid.UUID, eventType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}
	h.hub.BroadcastToOutlet(outletID, ws.Event{Type: eventType, Payload: raw})
}

func toSettlementResponse(res *service.Result) settlementResponse {
	o := res.Order
	order := orderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		ServiceMode:    o.ServiceMode,
		SettlementKind: o.SettlementKind,
		Status:         o.Status,
		Subtotal:       o.Subtotal,
		DiscountAmount: o.DiscountAmount,
		ServiceCharge:  o.ServiceCharge,
		TaxAmount:      o.TaxAmount,
		TotalAmount:    o.TotalAmount,
	}
	if o.TableID.Valid {
		s := uuid.UUID(o.TableID.Bytes).String()
		order.TableID = &s
	}
	order.Items = make([]orderItemResponse, len(res.Items))
	for i, it := range res.Items {
		order.Items[i] = orderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.LineTotal,
		}
	}

	resp := settlementResponse{Order: order}
	resp.Invoices = make([]invoiceResponse, len(res.Invoices))
	for i, inv := range res.Invoices {
		resp.Invoices[i] = invoiceResponse{ID: inv.ID, InvoiceNumber: inv.InvoiceNumber, Amount: inv.Amount}
	}
	resp.Payments = make([]paymentResponse, len(res.Payments))
	for i, p := range res.Payments {
		pr := paymentResponse{ID: p.ID, Method: p.Method, Amount: p.Amount, Status: p.Status}
		if p.AmountReceived.Valid {
			pr.AmountReceived = &p.AmountReceived.Int64
		}
		if p.ChangeAmount.Valid {
			pr.ChangeAmount = &p.ChangeAmount.Int64
		}
		resp.Payments[i] = pr
	}
	return resp
}

// writeCheckoutError maps checkout and settlement errors onto HTTP statuses.
// Validation problems are 400, lifecycle and concurrency conflicts 409,
// missing references 404; everything else is an opaque 500.
func writeCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyDraft),
		errors.Is(err, service.ErrInvalidPayment),
		errors.Is(err, service.ErrPaymentMismatch),
		errors.Is(err, service.ErrSplitMismatch),
		errors.Is(err, service.ErrSignatureRequired),
		errors.Is(err, cart.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrTableNotFound),
		errors.Is(err, service.ErrBeneficiaryNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrDestinationOccupied),
		errors.Is(err, service.ErrInsufficientCredit),
		errors.Is(err, service.ErrFolioClosed),
		errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrNoActiveCheckout),
		errors.Is(err, checkout.ErrSettlementInFlight),
		errors.Is(err, cart.ErrScopeOccupied):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: checkout: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
