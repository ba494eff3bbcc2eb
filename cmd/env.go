package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/oracle"
	"github.com/hsiehdog/travel-coordination-back/internal/patch"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "travel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for postgres (TRAVEL_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// engineEnv is a migrated store plus an engine built on the one oracle
// gateway for this process.
type engineEnv struct {
	Store  store.Store
	Engine *patch.Engine
}

func (e *engineEnv) Close() {
	e.Store.Close() //nolint:errcheck
}

func initEngine(ctx context.Context) (*engineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gw, err := oracle.New(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "init oracle")
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	return &engineEnv{Store: st, Engine: patch.NewEngine(st, gw, cfg.Patch)}, nil
}
