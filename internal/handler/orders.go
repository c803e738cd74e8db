package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/teranga-pos/api/internal/database"
	"github.com/teranga-pos/api/internal/receipt"
)

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListInvoicesByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Invoice, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

// OrderHandler serves settled orders and their printable receipts.
type OrderHandler struct {
	store OrderStore
}

func NewOrderHandler(store OrderStore) *OrderHandler {
	return &OrderHandler{store: store}
}

// RegisterRoutes registers order read endpoints. Expected to be mounted
// inside an outlet-scoped subrouter: /outlets/{oid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.Get)
	r.Get("/{id}/receipt", h.Receipt)
}

// Get handles GET /outlets/{oid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := orderIdentity(w, r)
	if !ok {
		return
	}

	order, items, invoices, payments, ok := h.fetchOrder(w, r, outletID, orderID)
	if !ok {
		return
	}

	res := &orderDetail{Order: order, Items: items, Invoices: invoices, Payments: payments}
	writeJSON(w, http.StatusOK, toOrderDetailResponse(res))
}

// Receipt handles GET /outlets/{oid}/orders/{id}/receipt. Responds with the
// printable plain-text receipt.
func (h *OrderHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	outletID, orderID, ok := orderIdentity(w, r)
	if !ok {
		return
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

	order, items, invoices, payments, ok := h.fetchOrder(w, r, outletID, orderID)
	if !ok {
		return
	}

	text, err := receipt.Render(receipt.FromOrder(outlet, order, items, invoices, payments))
	if err != nil {
		log.Printf("ERROR: render receipt: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		log.Printf("ERROR: write receipt: %v", err)
	}
}

// --- Helpers ---

type orderDetail struct {
	Order    database.Order
	Items    []database.OrderItem
	Invoices []database.Invoice
	Payments []database.Payment
}

func orderIdentity(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return outletID, orderID, true
}

func (h *OrderHandler) fetchOrder(w http.ResponseWriter, r *http.Request, outletID, orderID uuid.UUID) (database.Order, []database.OrderItem, []database.Invoice, []database.Payment, bool) {
	fail := func() (database.Order, []database.OrderItem, []database.Invoice, []database.Payment, bool) {
		return database.Order{}, nil, nil, nil, false
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return fail()
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return fail()
	}

	items, err := h.store.ListOrderItems(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return fail()
	}
	invoices, err := h.store.ListInvoicesByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list invoices: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return fail()
	}
	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return fail()
	}
	return order, items, invoices, payments, true
}

func toOrderDetailResponse(d *orderDetail) settlementResponse {
	o := d.Order
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
	order.Items = make([]orderItemResponse, len(d.Items))
	for i, it := range d.Items {
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
	resp.Invoices = make([]invoiceResponse, len(d.Invoices))
	for i, inv := range d.Invoices {
		resp.Invoices[i] = invoiceResponse{ID: inv.ID, InvoiceNumber: inv.InvoiceNumber, Amount: inv.Amount}
	}
	resp.Payments = make([]paymentResponse, len(d.Payments))
	for i, p := range d.Payments {
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
