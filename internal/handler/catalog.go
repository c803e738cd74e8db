package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/teranga-pos/api/internal/database"
)

// CatalogStore defines the database methods needed by catalog handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CatalogStore interface {
	GetOutlet(ctx context.Context, id uuid.UUID) (database.Outlet, error)
	ListCategoriesByOutlet(ctx context.Context, outletID uuid.UUID) ([]database.Category, error)
	ListProductsByOutlet(ctx context.Context, outletID uuid.UUID) ([]database.Product, error)
}

// CatalogHandler serves the read-only product catalog the POS terminals
// browse.
type CatalogHandler struct {
	store CatalogStore
}

func NewCatalogHandler(store CatalogStore) *CatalogHandler {
	return &CatalogHandler{store: store}
}

// RegisterRoutes registers catalog endpoints. Expected to be mounted inside
// an outlet-scoped subrouter.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.Settings)
	r.Get("/categories", h.ListCategories)
	r.Get("/products", h.ListProducts)
}

// --- Response types ---

type outletSettingsResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Currency          string    `json:"currency"`
	ServiceChargeRate string    `json:"service_charge_rate"`
	TaxRate           string    `json:"tax_rate"`
	ReceiptHeader     *string   `json:"receipt_header"`
	ReceiptFooter     *string   `json:"receipt_footer"`
}

type categoryResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	SortOrder int32     `json:"sort_order"`
}

type productResponse struct {
	ID         uuid.UUID `json:"id"`
	CategoryID uuid.UUID `json:"category_id"`
	Name       string    `json:"name"`
	UnitPrice  int64     `json:"unit_price"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// --- Handlers ---

// Settings handles GET /outlets/{oid}/settings.
func (h *CatalogHandler) Settings(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
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

	resp := outletSettingsResponse{
		ID:                outlet.ID,
		Name:              outlet.Name,
		Currency:          outlet.Currency,
		ServiceChargeRate: rateToString(outlet.ServiceChargeRate),
		TaxRate:           rateToString(outlet.TaxRate),
	}
	if outlet.ReceiptHeader.Valid {
		resp.ReceiptHeader = &outlet.ReceiptHeader.String
	}
	if outlet.ReceiptFooter.Valid {
		resp.ReceiptFooter = &outlet.ReceiptFooter.String
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListCategories handles GET /outlets/{oid}/categories.
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	categories, err := h.store.ListCategoriesByOutlet(r.Context(), outletID)
	if err != nil {
		log.Printf("ERROR: list categories: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]categoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = categoryResponse{ID: c.ID, Name: c.Name, SortOrder: c.SortOrder}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListProducts handles GET /outlets/{oid}/products.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	products, err := h.store.ListProductsByOutlet(r.Context(), outletID)
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = productResponse{
			ID:         p.ID,
			CategoryID: p.CategoryID,
			Name:       p.Name,
			UnitPrice:  p.UnitPrice,
			UpdatedAt:  p.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// rateToString renders a NUMERIC percentage rate; missing rates read as 0.
func rateToString(n pgtype.Numeric) string {
	d := rateToDecimal(n)
	return d.String()
}

// rateToDecimal converts a NUMERIC rate column to a decimal for the billing
// package. Invalid or null columns are treated as a zero rate.
func rateToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}
