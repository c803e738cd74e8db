// Package session keeps the per-operator workflow context (service mode,
// staff selection, business type) that the source system scattered across
// browser storage. It is an explicit, serializable object with an
// init/reset lifecycle tied to outlet switches; nothing here is part of the
// durable business record.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teranga-pos/api/internal/enum"
)

var ErrInvalidServiceMode = errors.New("invalid service_mode")

// Context is one operator's workflow state on one outlet.
type Context struct {
	StaffID         uuid.UUID `json:"staff_id"`
	OutletID        uuid.UUID `json:"outlet_id"`
	ServiceMode     string    `json:"service_mode"`
	SelectedStaffID uuid.UUID `json:"selected_staff_id,omitzero"`
	BusinessType    string    `json:"business_type,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func defaultContext(staffID, outletID uuid.UUID) Context {
	return Context{
		StaffID:     staffID,
		OutletID:    outletID,
		ServiceMode: enum.ServiceModeTable,
		UpdatedAt:   time.Now(),
	}
}

// Store holds operator contexts in memory, keyed by staff ID.
type Store struct {
	mu       sync.RWMutex
	contexts map[uuid.UUID]Context
}

func NewStore() *Store {
	return &Store{contexts: make(map[uuid.UUID]Context)}
}

// Get returns the operator's context, initializing a default TABLE-mode
// context on first access. Switching outlets resets the context: stale
// state from another outlet must never leak into the new one.
func (s *Store) Get(staffID, outletID uuid.UUID) Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contexts[staffID]
	if !ok || c.OutletID != outletID {
		c = defaultContext(staffID, outletID)
		s.contexts[staffID] = c
	}
	return c
}

// Update applies the requested service mode and selections.
func (s *Store) Update(staffID, outletID uuid.UUID, serviceMode string, selectedStaffID uuid.UUID, businessType string) (Context, error) {
	switch serviceMode {
	case enum.ServiceModeTable, enum.ServiceModeDirectSale, enum.ServiceModeCollectivity:
	default:
		return Context{}, ErrInvalidServiceMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := Context{
		StaffID:         staffID,
		OutletID:        outletID,
		ServiceMode:     serviceMode,
		SelectedStaffID: selectedStaffID,
		BusinessType:    businessType,
		UpdatedAt:       time.Now(),
	}
	s.contexts[staffID] = c
	return c, nil
}

// Reset drops the operator back to the default context.
func (s *Store) Reset(staffID, outletID uuid.UUID) Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := defaultContext(staffID, outletID)
	s.contexts[staffID] = c
	return c
}
