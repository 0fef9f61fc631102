package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-group-buying/internal/auth"
	"github.com/ariefcatur/go-group-buying/internal/config"
	"github.com/ariefcatur/go-group-buying/internal/httpx"
	kafkax "github.com/ariefcatur/go-group-buying/internal/kafka"
	"github.com/ariefcatur/go-group-buying/internal/logger"
	"github.com/ariefcatur/go-group-buying/internal/memstore"
	"github.com/ariefcatur/go-group-buying/internal/metrics"
	"github.com/ariefcatur/go-group-buying/internal/payment"
	"github.com/ariefcatur/go-group-buying/internal/postgres"
	"github.com/ariefcatur/go-group-buying/internal/redisx"
	"github.com/ariefcatur/go-group-buying/internal/teams"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.ServiceName, logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	memory := cfg.Store == "memory"

	// Store
	var store teams.Store
	if memory {
		ms := memstore.New()
		seedDemo(ms, []byte(cfg.JWTSecret), log)
		store = ms
	} else {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.MigrationsAuto {
			mig, err := postgres.NewMigrator(db, log)
			if err != nil {
				return err
			}
			if err := mig.Up(ctx); err != nil {
				return err
			}
		}
		store = postgres.NewStore(db)
	}

	// Redis: wajib di mode postgres, opsional di mode memory
	var rdb *redis.Client
	if c := redisx.New(cfg.RedisAddr); redisx.Ping(ctx, c, 2*time.Second) == nil {
		rdb = c
		defer rdb.Close()
	} else if memory {
		log.Warn("redis unavailable, running without cache, idempotency and logout", "addr", cfg.RedisAddr)
		_ = c.Close()
	} else {
		_ = c.Close()
		return errors.New("redis unavailable at " + cfg.RedisAddr)
	}

	// Kafka producer (tidak dipakai di mode memory)
	var publisher teams.Publisher
	var prod *kafkax.Producer
	if !memory {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start(ctx)
		publisher = kafkax.EventPublisher{P: prod}
	}

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	svc := &teams.Service{
		Store:               store,
		Payments:            payment.NewSimulator(log, cfg.PaymentTimeout),
		Publisher:           publisher,
		Observer:            m,
		Log:                 log,
		Producer:            cfg.ServiceName,
		PaymentDelaySeconds: cfg.PaymentDelaySeconds,
	}

	// Router & handlers
	router := httpx.NewRouter(m, cfg.PaymentTimeout+15*time.Second)
	th := &httpx.TeamsHandler{
		Teams:    svc,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Log:      log,
	}
	authn := &httpx.Authenticator{Secret: []byte(cfg.JWTSecret), Log: log}
	var ah *httpx.AuthHandler
	if rdb != nil {
		th.Cache = redisx.StatusCache{RDB: rdb}
		th.Idem = redisx.Idempotency{RDB: rdb}
		bl := redisx.TokenBlacklist{RDB: rdb}
		authn.Revoker = bl
		ah = &httpx.AuthHandler{Revoker: bl, Log: log}
	}
	router.Group(func(r chi.Router) {
		r.Use(authn.Require)
		th.Register(router, r)
		if ah != nil {
			ah.Register(r)
		}
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunSweeper(gctx, cfg.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	if prod != nil {
		prod.Close()      // stop loop -> flush & close writer
		prod.WaitClosed() // drain
	}
	return err
}

// seedDemo isi data contoh untuk STORE=memory dan log token dev-nya.
func seedDemo(ms *memstore.Store, secret []byte, log *slog.Logger) {
	now := time.Now().UTC()
	ms.AddProduct(teams.Product{
		ID: "prod-rice-50", Name: "Premium Rice", UnitPrice: decimal.NewFromInt(100),
		PackageSize: decimal.NewFromInt(50), Unit: teams.UnitKilogram, Quantity: 20, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	})
	ms.AddProduct(teams.Product{
		ID: "prod-oil-25", Name: "Palm Oil", UnitPrice: decimal.RequireFromString("2.50"),
		PackageSize: decimal.NewFromInt(25), Unit: teams.UnitLiter, Quantity: 10, IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	})
	users := []auth.User{
		{ID: "demo-customer-1", Kind: auth.KindCustomer},
		{ID: "demo-customer-2", Kind: auth.KindCustomer},
		{ID: "demo-seller-1", Kind: auth.KindSeller},
	}
	for _, u := range users {
		if u.CanParticipate() {
			ms.AddCustomer(u.ID)
		} else {
			ms.AddSeller(u.ID)
		}
		tok, err := auth.GenerateToken(secret, u, 24*time.Hour, now)
		if err != nil {
			log.Error("generate demo token", "user_id", u.ID, "error", err)
			continue
		}
		log.Info("demo token", "user_id", u.ID, "kind", u.Kind, "token", tok)
	}
}
