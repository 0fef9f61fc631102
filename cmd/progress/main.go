package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-group-buying/internal/config"
	kafkax "github.com/ariefcatur/go-group-buying/internal/kafka"
	"github.com/ariefcatur/go-group-buying/internal/logger"
	"github.com/ariefcatur/go-group-buying/internal/metrics"
	"github.com/ariefcatur/go-group-buying/internal/progress"
	"github.com/ariefcatur/go-group-buying/internal/redisx"
	"github.com/ariefcatur/go-group-buying/internal/teams"
)

// progress: consumer semua topic team -> status snapshot di Redis.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-progress"
	log := logger.New(service, logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		log.Error("metrics", "error", err)
		os.Exit(1)
	}

	svc := &progress.Service{
		Cache:   redisx.StatusCache{RDB: rdb},
		Dedup:   redisx.Deduper{RDB: rdb, Service: service},
		Metrics: m,
		Log:     log,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProgressGroup, teams.AllTopics, cfg.ProgressWorkers, log)

	// /metrics + /healthz di port terpisah
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	srv := &http.Server{Addr: getenv("PROGRESS_HTTP_ADDR", ":9091"), Handler: r, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("progress consumer started", "group", cfg.ProgressGroup, "topics", teams.AllTopics, "workers", cfg.ProgressWorkers)
		return cons.Start(gctx, svc.HandleEvent)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down consumer...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("progress exited", "error", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
