package main

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/racetrail/ingest-cli/internal/fetcher"
	"github.com/racetrail/ingest-cli/internal/source"
	"github.com/racetrail/ingest-cli/internal/store"
)

// ingestEnv holds the store and the provider registry shared by the
// ingest/stage/worker commands.
type ingestEnv struct {
	Store    store.Store
	Registry *source.Registry
}

// Close releases resources held by the environment.
func (e *ingestEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initIngest opens the store, runs migrations, and builds the provider
// registry. Callers should defer env.Close().
func initIngest(ctx context.Context) (*ingestEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	if err := st.SeedTaxonomy(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "seed taxonomy")
	}

	reg, err := source.NewRegistry(cfg.Sources, initFetcher())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &ingestEnv{Store: st, Registry: reg}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}

// initFetcher builds the shared HTTP fetcher with a per-provider-host
// politeness limiter derived from config.
func initFetcher() fetcher.Fetcher {
	limiters := make(map[string]*rate.Limiter)
	interval := time.Duration(cfg.Fetch.PolitenessMsec) * time.Millisecond
	for _, raw := range []string{cfg.Sources.UltraSignup.URL, cfg.Sources.Ahotu.URL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			limiters[u.Host] = fetcher.PolitenessLimiter(interval)
		}
	}

	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RateLimiters: limiters,
	})
}

// resolveSources returns the adapters to run: the named one, or all
// configured adapters when name is empty.
func resolveSources(reg *source.Registry, name string) ([]source.Source, error) {
	if name == "" {
		return reg.All(), nil
	}
	s, err := reg.Get(name)
	if err != nil {
		return nil, err
	}
	return []source.Source{s}, nil
}
