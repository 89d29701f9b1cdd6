package source

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/racetrail/ingest-cli/internal/config"
	"github.com/racetrail/ingest-cli/internal/fetcher"
)

// Registry holds the configured provider adapters in a stable order.
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry builds adapters for every provider with a configured URL.
// Providers without a URL are skipped with a warning; asking for one later
// is a configuration error.
func NewRegistry(cfg config.SourcesConfig, f fetcher.Fetcher) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source)}

	if cfg.UltraSignup.URL != "" {
		s, err := NewUltraSignup(cfg.UltraSignup, f)
		if err != nil {
			return nil, err
		}
		r.add(s)
	} else {
		zap.L().Warn("source not configured, skipping", zap.String("source", "ultrasignup"))
	}

	if cfg.Ahotu.URL != "" {
		s, err := NewAhotu(cfg.Ahotu, f)
		if err != nil {
			return nil, err
		}
		r.add(s)
	} else {
		zap.L().Warn("source not configured, skipping", zap.String("source", "ahotu"))
	}

	return r, nil
}

// NewRegistryWith builds a registry from explicit adapters, bypassing
// config. Used by tests and by callers that construct adapters themselves.
func NewRegistryWith(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.add(s)
	}
	return r
}

func (r *Registry) add(s Source) {
	r.sources[s.Name()] = s
	r.order = append(r.order, s.Name())
}

// Get returns the named adapter or a configuration error.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("source %q is not configured", name)
	}
	return s, nil
}

// Names lists configured adapters in registration order.
func (r *Registry) Names() []string { return r.order }

// All returns the configured adapters in registration order.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}
