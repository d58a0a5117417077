package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veldt-labs/sqlbridge/config"
	"github.com/veldt-labs/sqlbridge/logger"
	"github.com/veldt-labs/sqlbridge/protocol/api"
	"github.com/veldt-labs/sqlbridge/remote/memexec"
	"github.com/veldt-labs/sqlbridge/sql"
	"github.com/veldt-labs/sqlbridge/types"
)

func main() {
	cfg := config.LoadEngineConfig()

	addr := os.Getenv("SERVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// The in-memory store backs the server until a real remote connection
	// is configured; it doubles as a demo target.
	store := memexec.New()
	seedDemoData(store)

	engine := sql.NewEngine(cfg, store, store, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	api.NewRESTHandler(engine).RegisterRoutes(r)

	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

func seedDemoData(store *memexec.Executor) {
	accounts := []map[string]types.QueryValue{
		{"name": types.StringValue("Contoso"), "revenue": types.NumberValue(125000)},
		{"name": types.StringValue("Fabrikam"), "revenue": types.NumberValue(87000)},
		{"name": types.StringValue("Adventure Works"), "revenue": types.NumberValue(243000)},
	}
	for _, values := range accounts {
		store.Insert("account", values)
	}
}
