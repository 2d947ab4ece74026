// stubgate runs the development stand-in for the portal backend. It serves
// the same HTTP contract the SDK's api client speaks, plus /metrics and
// /healthz for local tooling.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tqhub/internal/platform/config"
	"tqhub/internal/platform/httpserver"
	"tqhub/internal/platform/logger"
	"tqhub/internal/stubgate"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New()

	fixtures, err := stubgate.DefaultFixtures()
	if err != nil {
		log.Error("failed to build fixtures", "error", err)
		os.Exit(1)
	}

	stub := stubgate.New(fixtures, []byte(cfg.StubSigningKey), stubgate.WithLogger(log))

	router := stub.Routes()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.StubAddr, router)

	log.Info("starting stubgate", "addr", cfg.StubAddr, "tenants", len(fixtures.Tenants))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
