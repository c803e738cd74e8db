package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/teranga-pos/api/internal/billing"
	"github.com/teranga-pos/api/internal/database"
)

// BeneficiaryStore defines the database methods needed by beneficiary
// handlers. Satisfied by *database.Queries.
type BeneficiaryStore interface {
	GetBeneficiaryByBadge(ctx context.Context, arg database.GetBeneficiaryByBadgeParams) (database.Beneficiary, error)
}

// BeneficiaryHandler looks up collectivity beneficiaries by badge scan. A
// missed scan is an expected outcome at the till, not a failure: the 404
// carries a message the cashier can read out and the sale continues once a
// valid badge is presented.
type BeneficiaryHandler struct {
	store BeneficiaryStore
}

func NewBeneficiaryHandler(store BeneficiaryStore) *BeneficiaryHandler {
	return &BeneficiaryHandler{store: store}
}

// RegisterRoutes registers beneficiary endpoints. Expected to be mounted
// inside an outlet-scoped subrouter: /outlets/{oid}/beneficiaries
func (h *BeneficiaryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{badge}", h.GetByBadge)
}

type beneficiaryResponse struct {
	ID            uuid.UUID `json:"id"`
	BadgeCode     string    `json:"badge_code"`
	FullName      string    `json:"full_name"`
	Category      string    `json:"category"`
	CreditBalance int64     `json:"credit_balance"`
	SubsidyRate   string    `json:"subsidy_rate"`
}

// GetByBadge handles GET /outlets/{oid}/beneficiaries/{badge}.
func (h *BeneficiaryHandler) GetByBadge(w http.ResponseWriter, r *http.Request) {
	outletID, err := uuid.Parse(chi.URLParam(r, "oid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet ID"})
		return
	}

	badge := chi.URLParam(r, "badge")
	if badge == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "badge code is required"})
		return
	}

	ben, err := h.store.GetBeneficiaryByBadge(r.Context(), database.GetBeneficiaryByBadgeParams{
		OutletID:  outletID,
		BadgeCode: badge,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no beneficiary for this badge"})
			return
		}
		log.Printf("ERROR: get beneficiary by badge: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, beneficiaryResponse{
		ID:            ben.ID,
		BadgeCode:     ben.BadgeCode,
		FullName:      ben.FullName,
		Category:      ben.Category,
		CreditBalance: ben.CreditBalance,
		SubsidyRate:   billing.SubsidyRate(ben.Category).String(),
	})
}
