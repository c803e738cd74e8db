package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teranga-pos/api/internal/cart"
	"github.com/teranga-pos/api/internal/checkout"
	"github.com/teranga-pos/api/internal/config"
	"github.com/teranga-pos/api/internal/database"
	"github.com/teranga-pos/api/internal/enum"
	"github.com/teranga-pos/api/internal/handler"
	"github.com/teranga-pos/api/internal/metrics"
	mw "github.com/teranga-pos/api/internal/middleware"
	"github.com/teranga-pos/api/internal/service"
	"github.com/teranga-pos/api/internal/session"
	"github.com/teranga-pos/api/internal/ws"
)

// Deps carries the long-lived components the router wires together.
type Deps struct {
	Queries   *database.Queries
	Pool      *pgxpool.Pool
	Hub       *ws.Hub
	Publisher handler.EventPublisher // nil when no broker is configured
	Metrics   *metrics.Metrics
}

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "https://pos.teranga.sn"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// In-memory workflow state shared across requests.
	carts := cart.NewStore()
	sessions := session.NewStore()
	settlement := service.NewSettlement(d.Pool, func(db database.DBTX) service.Store {
		return database.New(db)
	})
	machine := checkout.NewMachine(carts, settlement)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method("GET", "/metrics", metrics.Handler())

	authHandler := handler.NewAuthHandler(d.Queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/outlets/{oid}/events", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(d.Hub, cfg.JWTSecret, w, r)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/outlets/{oid}", func(r chi.Router) {
			r.Use(mw.RequireOutlet)

			catalogHandler := handler.NewCatalogHandler(d.Queries)
			catalogHandler.RegisterRoutes(r)

			tableHandler := handler.NewTableHandler(d.Queries)
			r.Route("/tables", tableHandler.RegisterRoutes)

			beneficiaryHandler := handler.NewBeneficiaryHandler(d.Queries)
			r.Route("/beneficiaries", beneficiaryHandler.RegisterRoutes)

			sessionHandler := handler.NewSessionHandler(sessions)
			r.Route("/session", sessionHandler.RegisterRoutes)

			cartHandler := handler.NewCartHandler(carts, d.Queries, settlement)
			r.Route("/carts/{scope}", cartHandler.RegisterRoutes)

			checkoutHandler := handler.NewCheckoutHandler(machine, d.Queries, d.Hub, d.Publisher, d.Metrics)
			r.Route("/checkout/{scope}", checkoutHandler.RegisterRoutes)

			orderHandler := handler.NewOrderHandler(d.Queries)
			r.Route("/orders", func(r chi.Router) {
				// Settled-order history and receipt reprints belong to the
				// cashier station, not the floor.
				r.Use(mw.RequireRole(enum.StaffRoleOwner, enum.StaffRoleManager, enum.StaffRoleCashier))
				orderHandler.RegisterRoutes(r)
			})
		})
	})

	return r
}
