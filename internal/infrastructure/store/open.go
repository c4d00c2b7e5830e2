package store

import (
	"context"
	"fmt"
	"log/slog"
)

type OpenOptions struct {
	Driver      string // "postgres" or "memory"
	DatabaseURL string
	Isolation   string
	Migrate     bool
}

// Open builds the configured store. The returned close function releases
// the database handle and is never nil.
func Open(ctx context.Context, opts OpenOptions, logger *slog.Logger) (Store, func() error, error) {
	noop := func() error { return nil }
	if opts.Driver == "memory" {
		logger.Warn("using in-memory store, data is lost on exit")
		return NewMemoryStore(), noop, nil
	}

	isolation, err := ParseIsolation(opts.Isolation)
	if err != nil {
		return nil, noop, err
	}
	db, err := ConnectPostgres(opts.DatabaseURL)
	if err != nil {
		return nil, noop, fmt.Errorf("connect postgres: %w", err)
	}
	if opts.Migrate {
		if err := Migrate(ctx, db, logger); err != nil {
			db.Close()
			return nil, noop, err
		}
	}
	logger.Info("connected to postgres", "isolation", isolation.String())
	return NewPostgresStore(db, isolation), db.Close, nil
}
