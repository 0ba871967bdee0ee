package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/postal-cli/internal/api"
	"github.com/sells-group/postal-cli/internal/store"
	"github.com/sells-group/postal-cli/pkg/ctt"
)

// initStore opens and migrates the configured record store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "csv":
		st, err = store.NewCSV(cfg.Store.Path)
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	zap.L().Debug("store ready", zap.String("driver", cfg.Store.Driver))
	return st, nil
}

// listShape picks the GET /postal-codes response shape. File-backed stores
// answer with a map, databases with a list, unless configured otherwise.
func listShape() string {
	if cfg.Server.ListShape != "" {
		return cfg.Server.ListShape
	}
	if cfg.Store.Driver == "csv" {
		return api.ShapeMap
	}
	return api.ShapeList
}

func newCTTClient() ctt.Client {
	return ctt.NewClient(ctt.Options{
		BaseURL:           cfg.CTT.BaseURL,
		Timeout:           time.Duration(cfg.CTT.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.CTT.RequestsPerSecond,
	})
}
