package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mlauria/lexflow/internal/config"
	"github.com/mlauria/lexflow/internal/httpapi"
	"github.com/mlauria/lexflow/internal/observability"
	"github.com/mlauria/lexflow/internal/research"
	"github.com/mlauria/lexflow/internal/session"
	"github.com/mlauria/lexflow/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	sessionStore, err := session.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("session store init failed: %v", err)
	}
	defer sessionStore.Close()
	persistence := session.NewPersistence(sessionStore)

	var client research.Client
	if strings.TrimSpace(cfg.ResearchBaseURL) != "" {
		client = research.NewHTTPClient(research.HTTPConfig{
			BaseURL:        cfg.ResearchBaseURL,
			WSURL:          cfg.ResearchWSURL,
			RequestTimeout: cfg.ResearchRequestTimeout,
		})
		log.Printf("research client: http (%s)", cfg.ResearchBaseURL)
	} else {
		client = research.NewMockClient()
		log.Printf("research client: mock (RESEARCH_BASE_URL is not set)")
	}

	registry := workflow.NewRegistry(client, persistence, metrics, cfg.PlanAdjustDebounce, cfg.WorkflowIdleTimeout)
	registry.StartJanitor()
	defer registry.Close()

	api := httpapi.New(cfg, registry, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
