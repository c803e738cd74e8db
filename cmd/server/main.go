package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/teranga-pos/api/internal/config"
	"github.com/teranga-pos/api/internal/database"
	"github.com/teranga-pos/api/internal/events"
	"github.com/teranga-pos/api/internal/metrics"
	"github.com/teranga-pos/api/internal/router"
	"github.com/teranga-pos/api/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	deps := router.Deps{
		Queries: database.New(pool),
		Pool:    pool,
		Hub:     hub,
		Metrics: metrics.New(),
	}

	if cfg.AMQPUrl != "" {
		publisher, err := events.Dial(cfg.AMQPUrl, cfg.Exchange)
		if err != nil {
			log.Fatalf("connect to broker: %v", err)
		}
		defer publisher.Close()
		deps.Publisher = publisher
	} else {
		log.Println("AMQP_URL not set, event publishing disabled")
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.New(cfg, deps),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: shutdown: %v", err)
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}
}

func runMigrations(databaseURL string) error {
	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
