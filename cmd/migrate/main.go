package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-group-buying/internal/config"
	"github.com/ariefcatur/go-group-buying/internal/logger"
	"github.com/ariefcatur/go-group-buying/internal/postgres"
	"github.com/ariefcatur/go-group-buying/internal/teams"
)

const usage = "usage: migrate up | status | down [version] | seed"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.ServiceName+"-migrate", logger.ParseLevel(cfg.LogLevel))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(context.Background(), cfg, log, os.Args[1], os.Args[2:]); err != nil {
		log.Error("migrate failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger, cmd string, args []string) error {
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		return err
	}
	defer db.Close()

	mig, err := postgres.NewMigrator(db, log)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		return mig.Up(ctx)
	case "status":
		return mig.Status(ctx)
	case "down":
		var target int64
		if len(args) > 0 {
			target, err = strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
		}
		return mig.Down(ctx, target)
	case "seed":
		if err := mig.Up(ctx); err != nil {
			return err
		}
		return seed(ctx, postgres.NewStore(db), log)
	}
	return fmt.Errorf("unknown command %q (%s)", cmd, usage)
}

// seed: data dev, aman dijalankan berulang (upsert).
func seed(ctx context.Context, s *postgres.Store, log *slog.Logger) error {
	users := []struct{ id, kind string }{
		{"demo-customer-1", "customer"},
		{"demo-customer-2", "customer"},
		{"demo-seller-1", "seller"},
	}
	for _, u := range users {
		if err := s.UpsertUser(ctx, u.id, u.kind); err != nil {
			return fmt.Errorf("seed user %s: %w", u.id, err)
		}
	}
	products := []teams.Product{
		{ID: "prod-rice-50", Name: "Premium Rice", UnitPrice: decimal.NewFromInt(100),
			PackageSize: decimal.NewFromInt(50), Unit: teams.UnitKilogram, Quantity: 20, IsActive: true},
		{ID: "prod-oil-25", Name: "Palm Oil", UnitPrice: decimal.RequireFromString("2.50"),
			PackageSize: decimal.NewFromInt(25), Unit: teams.UnitLiter, Quantity: 10, IsActive: true},
	}
	for _, p := range products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	log.Info("seed done", "users", len(users), "products", len(products))
	return nil
}
