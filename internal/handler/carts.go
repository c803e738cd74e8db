package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/teranga-pos/api/internal/cart"
	"github.com/teranga-pos/api/internal/database"
	"github.com/teranga-pos/api/internal/service"
)

// CartCatalog is the product lookup cart mutations need. Satisfied by
// *database.Queries.
type CartCatalog interface {
	GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error)
}

// TableOps updates table occupancy as carts open and close. Satisfied by
// *service.Settlement.
type TableOps interface {
	OccupyTable(ctx context.Context, outletID, tableID uuid.UUID) error
	ReleaseTable(ctx context.Context, outletID, tableID uuid.UUID) error
}

// CartHandler exposes the in-memory cart for one scope. Every mutation
// carries the version the client last saw; a stale version is rejected so
// two terminals cannot silently overwrite each other.
type CartHandler struct {
	carts   *cart.Store
	catalog CartCatalog
	tables  TableOps
}

func NewCartHandler(carts *cart.Store, catalog CartCatalog, tables TableOps) *CartHandler {
	return &CartHandler{carts: carts, catalog: catalog, tables: tables}
}

// RegisterRoutes registers cart endpoints. Expected to be mounted inside an
// outlet-scoped subrouter: /outlets/{oid}/carts/{scope}
func (h *CartHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Post("/items", h.AddItem)
	r.Patch("/items/{itemID}", h.UpdateItem)
	r.Delete("/items/{itemID}", h.RemoveItem)
	r.Delete("/", h.Clear)
}

// --- Request / Response types ---

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	Version   int64  `json:"version"`
}

type updateItemRequest struct {
	Quantity int32 `json:"quantity"`
	Version  int64 `json:"version"`
}

// --- Handlers ---

// Get handles GET /outlets/{oid}/carts/{scope}.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.carts.Snapshot(outletID, scope))
}

// AddItem handles POST /outlets/{oid}/carts/{scope}/items. Adding to an
// existing product merges quantities into the existing line. The first line
// on a table scope marks the table occupied.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id"})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be > 0"})
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), database.GetProductParams{
		ID:       productID,
		OutletID: outletID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	wasEmpty := h.carts.Snapshot(outletID, scope).Empty()

	snap, err := h.carts.AddItem(outletID, scope, req.Version, cart.ProductRef{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
	}, req.Quantity)
	if err != nil {
		h.writeCartError(w, outletID, scope, err)
		return
	}

	if wasEmpty {
		if tableID, ok := tableIDFromScope(scope); ok {
			if err := h.tables.OccupyTable(r.Context(), outletID, tableID); err != nil {
				log.Printf("ERROR: occupy table: %v", err)
			}
		}
	}

	writeJSON(w, http.StatusCreated, snap)
}

// UpdateItem handles PATCH /outlets/{oid}/carts/{scope}/items/{itemID}.
// A quantity of zero removes the line.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	snap, err := h.carts.UpdateQuantity(outletID, scope, req.Version, itemID, req.Quantity)
	if err != nil {
		h.writeCartError(w, outletID, scope, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// RemoveItem handles DELETE /outlets/{oid}/carts/{scope}/items/{itemID}.
// The version the client saw travels as the "version" query parameter.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "version query parameter is required"})
		return
	}

	snap, err := h.carts.RemoveItem(outletID, scope, version, itemID)
	if err != nil {
		h.writeCartError(w, outletID, scope, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Clear handles DELETE /outlets/{oid}/carts/{scope}. Clearing a table cart
// frees the table unless ?keep_table=true.
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	outletID, scope, ok := cartScope(w, r)
	if !ok {
		return
	}

	h.carts.Clear(outletID, scope)

	if r.URL.Query().Get("keep_table") != "true" {
		if tableID, ok := tableIDFromScope(scope); ok {
			if err := h.tables.ReleaseTable(r.Context(), outletID, tableID); err != nil && !errors.Is(err, service.ErrTableNotFound) {
				log.Printf("ERROR: release table: %v", err)
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// cartScope extracts and validates the outlet ID and cart scope from the
// request path. Writes the error response itself when invalid.
func cartScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return uuid.Nil, "", false
	}

	scope := chi.URLParam(r, "scope")
	if !validScope(scope) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cart scope"})
		return uuid.Nil, "", false
	}
	return outletID, scope, true
}

func validScope(scope string) bool {
	switch {
	case strings.HasPrefix(scope, "table:"):
		_, err := uuid.Parse(strings.TrimPrefix(scope, "table:"))
		return err == nil
	case strings.HasPrefix(scope, "direct:"):
		return len(scope) > len("direct:")
	case strings.HasPrefix(scope, "collectivity:"):
		return len(scope) > len("collectivity:")
	}
	return false
}

func tableIDFromScope(scope string) (uuid.UUID, bool) {
	if !strings.HasPrefix(scope, "table:") {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(scope, "table:"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *CartHandler) writeCartError(w http.ResponseWriter, outletID uuid.UUID, scope string, err error) {
	switch {
	case errors.Is(err, cart.ErrVersionConflict):
		// The losing terminal gets the current cart back so it can resync
		// without a second round trip.
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": err.Error(),
			"cart":  h.carts.Snapshot(outletID, scope),
		})
	case errors.Is(err, cart.ErrFrozen):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, cart.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: cart operation: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
