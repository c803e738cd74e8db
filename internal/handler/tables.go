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
	"github.com/teranga-pos/api/internal/database"
	"github.com/teranga-pos/api/internal/middleware"
)

// TableStore defines the database methods needed by table handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type TableStore interface {
	ListTablesByOutlet(ctx context.Context, outletID uuid.UUID) ([]database.Table, error)
	ListTablesByStaff(ctx context.Context, arg database.ListTablesByStaffParams) ([]database.Table, error)
	GetTable(ctx context.Context, arg database.GetTableParams) (database.Table, error)
}

// TableHandler serves the floor plan.
type TableHandler struct {
	store TableStore
}

func NewTableHandler(store TableStore) *TableHandler {
	return &TableHandler{store: store}
}

// RegisterRoutes registers table endpoints. Expected to be mounted inside an
// outlet-scoped subrouter: /outlets/{oid}/tables
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

type tableResponse struct {
	ID              uuid.UUID `json:"id"`
	Number          int32     `json:"number"`
	Capacity        int32     `json:"capacity"`
	Status          string    `json:"status"`
	AssignedStaffID *string   `json:"assigned_staff_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// List handles GET /outlets/{oid}/tables. With ?mine=true only the tables
// assigned to the authenticated waiter are returned.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	var tables []database.Table
	if r.URL.Query().Get("mine") == "true" {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}
		tables, err = h.store.ListTablesByStaff(r.Context(), database.ListTablesByStaffParams{
			OutletID:        outletID,
			AssignedStaffID: claims.StaffID,
		})
	} else {
		tables, err = h.store.ListTablesByOutlet(r.Context(), outletID)
	}
	if err != nil {
		log.Printf("ERROR: list tables: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = dbTableToResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /outlets/{oid}/tables/{id}.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	table, err := h.store.GetTable(r.Context(), database.GetTableParams{ID: tableID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		log.Printf("ERROR: get table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbTableToResponse(table))
}

func dbTableToResponse(t database.Table) tableResponse {
	resp := tableResponse{
		ID:        t.ID,
		Number:    t.Number,
		Capacity:  t.Capacity,
		Status:    t.Status,
		UpdatedAt: t.UpdatedAt,
	}
	if t.AssignedStaffID.Valid {
		s := uuid.UUID(t.AssignedStaffID.Bytes).String()
		resp.AssignedStaffID = &s
	}
	return resp
}
