package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/domain/catalog"
	"github.com/example/ec-storefront/internal/infrastructure/store"
)

const usage = `usage: cli <command> [flags]

commands:
  migrate   apply database migrations
  seed      create a demo catalog
  token     mint an access token for a user`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger().With("service", "cli")

	ctx := context.Background()
	switch os.Args[1] {
	case "migrate":
		err = runMigrate(ctx, cfg, logger)
	case "seed":
		err = runSeed(ctx, cfg, logger)
	case "token":
		err = runToken(cfg, os.Args[2:], os.Stdout)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return store.Migrate(ctx, db, logger)
}

type seedProduct struct {
	name, description, price string
	stock                    int
}

var seedCatalog = map[string][]seedProduct{
	"Books": {
		{"The Go Programming Language", "Donovan and Kernighan", "39.99", 25},
		{"Concurrency in Go", "Katherine Cox-Buday", "34.50", 10},
	},
	"Home and Garden": {
		{"Watering Can", "Two litre, galvanised steel", "18.00", 40},
		{"Seed Tray", "Pack of five", "7.25", 100},
	},
}

func runSeed(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, closeStore, err := store.Open(ctx, store.OpenOptions{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		Isolation:   cfg.TxIsolation,
		Migrate:     true,
	}, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := catalog.NewService(st, logger)
	seeder := domain.Caller{UserID: "cli-seed", Role: domain.RoleAdmin}
	for categoryName, products := range seedCatalog {
		c, err := svc.CreateCategory(ctx, seeder, catalog.CategoryInput{Name: categoryName})
		if err != nil {
			return fmt.Errorf("category %q: %w", categoryName, err)
		}
		for _, p := range products {
			_, err := svc.CreateProduct(ctx, seeder, catalog.ProductInput{
				CategoryID:  c.ID,
				Name:        p.name,
				Description: p.description,
				Price:       decimal.RequireFromString(p.price),
				Stock:       p.stock,
			})
			if err != nil {
				return fmt.Errorf("product %q: %w", p.name, err)
			}
		}
		logger.Info("seeded category", "category", categoryName, "products", len(products))
	}
	return nil
}

func runToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id (required)")
	email := fs.String("email", "", "email address")
	role := fs.String("role", string(domain.RoleCustomer), "customer or admin")
	ttl := fs.Duration("ttl", 0, "token lifetime, defaults to JWT_EXPIRY")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		fs.PrintDefaults()
		return fmt.Errorf("-user is required")
	}
	if r := domain.Role(*role); r != domain.RoleCustomer && r != domain.RoleAdmin {
		return fmt.Errorf("unknown role %q", *role)
	}
	if err := cfg.RequireSecret(); err != nil {
		return err
	}

	expiry := cfg.JWTExpiry
	if *ttl > 0 {
		expiry = *ttl
	}
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	token, expiresAt, err := jwtService.GenerateAccessToken(*userID, *email, domain.Role(*role))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}
