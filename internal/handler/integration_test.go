//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/teranga-pos/api/internal/config"
	"github.com/teranga-pos/api/internal/database"
	"github.com/teranga-pos/api/internal/metrics"
	"github.com/teranga-pos/api/internal/router"
	"github.com/teranga-pos/api/internal/ws"
)

// TestIntegrationCheckoutFlow exercises the full stack against a real
// PostgreSQL database: login, cart building, bill preview, settlement, and
// the persisted order with its receipt.
func TestIntegrationCheckoutFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runIntegrationMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:        "8081",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// hub.Run() goroutine leaks on test exit; the hub has no shutdown hook.
	// Acceptable for tests.
	go hub.Run()

	r := router.New(cfg, router.Deps{
		Queries: queries,
		Pool:    pool,
		Hub:     hub,
		Metrics: metrics.New(),
	})
	server := httptest.NewServer(r)
	defer server.Close()

	// Bootstrap data the API has no endpoints for.
	outletID := createTestOutlet(t, ctx, pool)
	createTestOwner(t, ctx, pool, outletID)
	tableID := createTestTable(t, ctx, pool, outletID, 1)
	productID := createTestProduct(t, ctx, pool, outletID, "Thieboudienne", 3500)
	badgeID := createTestBeneficiary(t, ctx, pool, outletID, "BDG-0001", "STUDENT", 20000)

	token := integrationLogin(t, server, "owner@test.sn", "password123")

	// --- Cash settlement on a table ---
	scope := "table:" + tableID.String()

	addResp := httpPostJSON(t, server, fmt.Sprintf("/outlets/%s/carts/%s/items", outletID, scope), map[string]interface{}{
		"product_id": productID.String(),
		"quantity":   2,
		"version":    0,
	}, token)
	if addResp["version"].(float64) != 1 {
		t.Fatalf("cart version after add: got %v, want 1", addResp["version"])
	}

	// The first item occupies the table.
	tableResp := httpGetJSON(t, server, fmt.Sprintf("/outlets/%s/tables/%s", outletID, tableID), token)
	if tableResp["status"] != "OCCUPIED" {
		t.Fatalf("table status: got %v, want OCCUPIED", tableResp["status"])
	}

	previewResp := httpPostJSON(t, server, fmt.Sprintf("/outlets/%s/checkout/%s/preview", outletID, scope), map[string]interface{}{
		"release_table": true,
	}, token)
	totals := previewResp["totals"].(map[string]interface{})
	// 7000 + 10% service + 18% tax on the charged base.
	grandTotal := int64(totals["grand_total"].(float64))
	if grandTotal != 9086 {
		t.Fatalf("grand_total: got %d, want 9086", grandTotal)
	}

	payResp := httpPostJSON(t, server, fmt.Sprintf("/outlets/%s/checkout/%s/pay", outletID, scope), map[string]interface{}{
		"payments": []map[string]interface{}{
			{"method": "CASH", "amount": grandTotal, "amount_received": 10000},
		},
	}, token)
	order := payResp["order"].(map[string]interface{})
	orderID := uuid.MustParse(order["id"].(string))
	if order["order_number"] != "POS-0001" {
		t.Fatalf("order_number: got %v, want POS-0001", order["order_number"])
	}

	// Settlement freed the table and cleared the cart.
	tableResp = httpGetJSON(t, server, fmt.Sprintf("/outlets/%s/tables/%s", outletID, tableID), token)
	if tableResp["status"] != "FREE" {
		t.Fatalf("table status after settlement: got %v, want FREE", tableResp["status"])
	}

	orderResp := httpGetJSON(t, server, fmt.Sprintf("/outlets/%s/orders/%s", outletID, orderID), token)
	payments := orderResp["payments"].([]interface{})
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(payments))
	}

	receipt := httpGetText(t, server, fmt.Sprintf("/outlets/%s/orders/%s/receipt", outletID, orderID), token)
	if !strings.Contains(receipt, "POS-0001") || !strings.Contains(receipt, "Thieboudienne") {
		t.Fatalf("unexpected receipt:\n%s", receipt)
	}

	// --- Subsidized settlement on a collectivity scope ---
	colScope := "collectivity:till-1"
	httpPostJSON(t, server, fmt.Sprintf("/outlets/%s/carts/%s/items", outletID, colScope), map[string]interface{}{
		"product_id": productID.String(),
		"quantity":   1,
		"version":    0,
	}, token)
	httpPostJSON(t, server, fmt.Sprintf("/outlets/%s/checkout/%s/preview", outletID, colScope), map[string]interface{}{
		"service_mode": "COLLECTIVITY",
	}, token)

	subsidyResp := httpPostJSON(t, server, fmt.Sprintf("/outlets/%s/checkout/%s/subsidy", outletID, colScope), map[string]interface{}{
		"badge_code": "BDG-0001",
	}, token)
	colOrder := subsidyResp["order"].(map[string]interface{})
	colTotal := int64(colOrder["total_amount"].(float64))
	subPayments := subsidyResp["payments"].([]interface{})
	if len(subPayments) != 2 {
		t.Fatalf("expected SUBSIDY + BENEFICIARY_CREDIT payments, got %d", len(subPayments))
	}
	var paid int64
	for _, p := range subPayments {
		paid += int64(p.(map[string]interface{})["amount"].(float64))
	}
	if paid != colTotal {
		t.Fatalf("payment rows sum to %d, order total is %d", paid, colTotal)
	}

	// Credit was debited for the beneficiary share only.
	var credit int64
	if err := pool.QueryRow(ctx, `SELECT credit_balance FROM beneficiaries WHERE id = $1`, badgeID).Scan(&credit); err != nil {
		t.Fatalf("read credit balance: %v", err)
	}
	if credit >= 20000 {
		t.Fatalf("credit balance not debited: %d", credit)
	}

	t.Logf("integration flow passed: container=%s outlet=%s order=%s", pgContainer.GetContainerID(), outletID, orderID)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runIntegrationMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this package directory; go test sets cwd here.
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createTestOutlet(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO outlets (name, currency, service_charge_rate, tax_rate)
		 VALUES ('Chez Coumba', 'XOF', 10, 18)
		 RETURNING id`).Scan(&id)
	if err != nil {
		t.Fatalf("create outlet: %v", err)
	}
	return id
}

func createTestOwner(t *testing.T, ctx context.Context, pool *pgxpool.Pool, outletID uuid.UUID) uuid.UUID {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO staff (outlet_id, email, hashed_password, full_name, role)
		 VALUES ($1, 'owner@test.sn', $2, 'Test Owner', 'OWNER')
		 RETURNING id`,
		outletID, string(hashed)).Scan(&id)
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return id
}

func createTestTable(t *testing.T, ctx context.Context, pool *pgxpool.Pool, outletID uuid.UUID, number int) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO restaurant_tables (outlet_id, number, capacity) VALUES ($1, $2, 4) RETURNING id`,
		outletID, number).Scan(&id)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return id
}

func createTestProduct(t *testing.T, ctx context.Context, pool *pgxpool.Pool, outletID uuid.UUID, name string, price int64) uuid.UUID {
	t.Helper()
	var categoryID uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO categories (outlet_id, name, sort_order) VALUES ($1, 'Plats', 1) RETURNING id`,
		outletID).Scan(&categoryID)
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO products (outlet_id, category_id, name, unit_price) VALUES ($1, $2, $3, $4) RETURNING id`,
		outletID, categoryID, name, price).Scan(&id)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return id
}

func createTestBeneficiary(t *testing.T, ctx context.Context, pool *pgxpool.Pool, outletID uuid.UUID, badge, category string, credit int64) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO beneficiaries (outlet_id, badge_code, full_name, category, credit_balance)
		 VALUES ($1, $2, 'Awa Ndoye', $3, $4)
		 RETURNING id`,
		outletID, badge, category, credit).Scan(&id)
	if err != nil {
		t.Fatalf("create beneficiary: %v", err)
	}
	return id
}

func integrationLogin(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

// --- HTTP helpers ---

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, err := http.NewRequest("POST", server.URL+path, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("POST %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpGetText(t *testing.T, server *httptest.Server, path string, token string) string {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.String()
}
