package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/teranga-pos/api/internal/database"
	"github.com/teranga-pos/api/internal/handler"
)

// --- Mock store ---

type mockCatalogStore struct {
	outlets    map[uuid.UUID]database.Outlet
	categories []database.Category
	products   []database.Product
}

func newMockCatalogStore() *mockCatalogStore {
	return &mockCatalogStore{outlets: make(map[uuid.UUID]database.Outlet)}
}

func (m *mockCatalogStore) GetOutlet(_ context.Context, id uuid.UUID) (database.Outlet, error) {
	o, ok := m.outlets[id]
	if !ok {
		return database.Outlet{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockCatalogStore) ListCategoriesByOutlet(_ context.Context, outletID uuid.UUID) ([]database.Category, error) {
	var result []database.Category
	for _, c := range m.categories {
		if c.OutletID == outletID && c.IsActive {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *mockCatalogStore) ListProductsByOutlet(_ context.Context, outletID uuid.UUID) ([]database.Product, error) {
	var result []database.Product
	for _, p := range m.products {
		if p.OutletID == outletID && p.IsActive {
			result = append(result, p)
		}
	}
	return result, nil
}

// --- Helpers ---

func setupCatalogRouter(store *mockCatalogStore) *chi.Mux {
	h := handler.NewCatalogHandler(store)
	r := chi.NewRouter()
	r.Route("/outlets/{oid}", h.RegisterRoutes)
	return r
}

// --- Tests ---

func TestSettings_ReturnsRatesAndReceiptText(t *testing.T) {
	store := newMockCatalogStore()
	outletID := uuid.New()
	store.outlets[outletID] = database.Outlet{
		ID:                outletID,
		Name:              "Chez Coumba",
		Currency:          "XOF",
		ServiceChargeRate: numeric(t, "10"),
		TaxRate:           numeric(t, "18"),
		ReceiptHeader:     pgtype.Text{String: "Chez Coumba - Dakar Plateau", Valid: true},
		ReceiptFooter:     pgtype.Text{String: "Merci de votre visite !", Valid: true},
	}
	router := setupCatalogRouter(store)

	rr := doRequest(t, router, "GET", "/outlets/"+outletID.String()+"/settings", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["currency"] != "XOF" {
		t.Errorf("currency: got %v, want XOF", resp["currency"])
	}
	if resp["service_charge_rate"] != "10" {
		t.Errorf("service_charge_rate: got %v, want 10", resp["service_charge_rate"])
	}
	if resp["tax_rate"] != "18" {
		t.Errorf("tax_rate: got %v, want 18", resp["tax_rate"])
	}
	if resp["receipt_footer"] != "Merci de votre visite !" {
		t.Errorf("receipt_footer: got %v", resp["receipt_footer"])
	}
}

func TestSettings_OutletNotFound(t *testing.T) {
	store := newMockCatalogStore()
	router := setupCatalogRouter(store)

	rr := doRequest(t, router, "GET", "/outlets/"+uuid.New().String()+"/settings", nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestListCategories_FiltersByOutlet(t *testing.T) {
	store := newMockCatalogStore()
	outletID := uuid.New()
	store.categories = []database.Category{
		{ID: uuid.New(), OutletID: outletID, Name: "Plats", SortOrder: 1, IsActive: true},
		{ID: uuid.New(), OutletID: outletID, Name: "Boissons", SortOrder: 2, IsActive: true},
		{ID: uuid.New(), OutletID: uuid.New(), Name: "Autres", SortOrder: 1, IsActive: true},
	}
	router := setupCatalogRouter(store)

	rr := doRequest(t, router, "GET", "/outlets/"+outletID.String()+"/categories", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeListResponse(t, rr)
	if len(resp) != 2 {
		t.Errorf("expected 2 categories, got %d", len(resp))
	}
}

func TestListProducts_ReturnsPricesInMinorUnits(t *testing.T) {
	store := newMockCatalogStore()
	outletID := uuid.New()
	categoryID := uuid.New()
	store.products = []database.Product{
		{ID: uuid.New(), OutletID: outletID, CategoryID: categoryID, Name: "Thieboudienne", UnitPrice: 3500, IsActive: true},
		{ID: uuid.New(), OutletID: outletID, CategoryID: categoryID, Name: "Retired dish", UnitPrice: 1000, IsActive: false},
	}
	router := setupCatalogRouter(store)

	rr := doRequest(t, router, "GET", "/outlets/"+outletID.String()+"/products", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeListResponse(t, rr)
	if len(resp) != 1 {
		t.Fatalf("expected 1 active product, got %d", len(resp))
	}
	if resp[0]["unit_price"].(float64) != 3500 {
		t.Errorf("unit_price: got %v, want 3500", resp[0]["unit_price"])
	}
}

func TestCatalog_InvalidOutletID(t *testing.T) {
	store := newMockCatalogStore()
	router := setupCatalogRouter(store)

	rr := doRequest(t, router, "GET", "/outlets/not-a-uuid/products", nil)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
