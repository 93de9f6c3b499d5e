package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/OancaAdrian/CRM/internal/resilience"
	"github.com/OancaAdrian/CRM/internal/store"
)

// initStore opens the configured backend and waits for it to answer a
// ping, with a few bounded retries for databases still starting up.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "crm.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.Store.ConnectAttempts,
		InitialBackoff: time.Second,
	}
	if err := resilience.Do(ctx, retry, st.Ping); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "store: ping")
	}
	return st, nil
}
