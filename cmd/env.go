package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mktdata-cli/internal/cache"
	"github.com/sells-group/mktdata-cli/internal/futures"
	"github.com/sells-group/mktdata-cli/internal/reconcile"
	"github.com/sells-group/mktdata-cli/internal/resilience"
	"github.com/sells-group/mktdata-cli/internal/store"
	"github.com/sells-group/mktdata-cli/internal/terminal"
)

// queryEnv holds the initialized store, gateway client and query engine
// shared by every data command.
type queryEnv struct {
	Store    store.Store
	Cache    *cache.Store
	Engine   *reconcile.Engine
	Resolver *futures.Resolver
}

// Close releases resources held by the environment.
func (qe *queryEnv) Close() {
	if qe.Store != nil {
		_ = qe.Store.Close()
	}
}

// initEnv validates config for the mode, opens the store, and wires the
// gateway client, cache and engine. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*queryEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := terminal.NewClient(terminal.Options{
		BaseURL:   cfg.Terminal.BaseURL,
		Timeout:   time.Duration(cfg.Terminal.TimeoutSecs) * time.Second,
		RateLimit: cfg.Terminal.RateLimit,
		Burst:     cfg.Terminal.Burst,
		Retry:     resilience.DefaultRetryConfig(),
	})

	c := cache.New(cfg.Cache.Root)
	engine := reconcile.New(reconcile.Config{
		Provider: client,
		Cache:    c,
		Store:    st,
	})
	resolver := futures.NewResolver(engine)
	engine.SetResolver(resolver)

	return &queryEnv{
		Store:    st,
		Cache:    c,
		Engine:   engine,
		Resolver: resolver,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
