package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/teranga-pos/api/internal/auth"
	"github.com/teranga-pos/api/internal/middleware"
	"github.com/teranga-pos/api/internal/session"
)

// SessionHandler exposes the operator's workflow context: service mode,
// staff selection, business type. Purely in-memory state.
type SessionHandler struct {
	sessions *session.Store
}

func NewSessionHandler(sessions *session.Store) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes registers session endpoints. Expected to be mounted inside
// an outlet-scoped subrouter: /outlets/{oid}/session
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Update)
	r.Delete("/", h.Reset)
}

type updateSessionRequest struct {
	ServiceMode     string `json:"service_mode"`
	SelectedStaffID string `json:"selected_staff_id"`
	BusinessType    string `json:"business_type"`
}

// Get handles GET /outlets/{oid}/session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	outletID, claims, ok := sessionIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Get(claims.StaffID, outletID))
}

// Update handles PUT /outlets/{oid}/session.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	outletID, claims, ok := sessionIdentity(w, r)
	if !ok {
		return
	}

	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	selectedStaffID := uuid.Nil
	if req.SelectedStaffID != "" {
		id, err := uuid.Parse(req.SelectedStaffID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid selected_staff_id"})
			return
		}
		selectedStaffID = id
	}

	ctx, err := h.sessions.Update(claims.StaffID, outletID, req.ServiceMode, selectedStaffID, req.BusinessType)
	if err != nil {
		if errors.Is(err, session.ErrInvalidServiceMode) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, ctx)
}

// Reset handles DELETE /outlets/{oid}/session.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	outletID, claims, ok := sessionIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Reset(claims.StaffID, outletID))
}

func sessionIdentity(w http.ResponseWriter, r *http.Request) (uuid.UUID, *auth.Claims, bool) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return uuid.Nil, nil, false
	}
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return uuid.Nil, nil, false
	}
	return outletID, claims, true
}
