package websearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// Searcher owns the provider registry and response cache for one
// configured provider chain. Construct it once at startup and share it;
// Search is safe for concurrent use.
type Searcher struct {
	cfg      *Config
	registry *Registry
	cache    *resultCache
}

// NewSearcher builds the provider chain from cfg. Providers missing their
// required configuration are simply not registered.
func NewSearcher(cfg *Config) *Searcher {
	cfg = cfg.WithDefaults()
	registry := NewRegistry()
	registerProviders(registry, cfg)
	logx.Debug().Strs("providers", registry.Names()).Msg("search providers registered")
	return &Searcher{
		cfg:      cfg,
		registry: registry,
		cache:    newResultCache(time.Duration(cfg.CacheTTLSecs) * time.Second),
	}
}

// Search executes a search through the provider chain. Providers are tried
// in order until one succeeds; successful responses are cached for the
// configured TTL.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("missing query")
	}
	req = normalizeRequest(req)

	if resp, ok := s.cache.get(req); ok {
		return resp, nil
	}

	var lastErr error
	for _, name := range buildOrder(s.cfg) {
		provider := s.registry.Get(name)
		if provider == nil {
			continue
		}
		resp, err := provider.Search(ctx, req)
		if err != nil {
			logx.Warn().Err(err).Str("provider", name).Str("query", req.Query).Msg("search provider failed")
			lastErr = err
			continue
		}
		if resp == nil {
			lastErr = fmt.Errorf("provider %s returned empty response", name)
			continue
		}
		if resp.Provider == "" {
			resp.Provider = name
		}
		if resp.Query == "" {
			resp.Query = req.Query
		}
		if resp.Count == 0 {
			resp.Count = len(resp.Results)
		}
		s.cache.put(req, resp)
		return resp, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("no search providers available")
}

func normalizeRequest(req Request) Request {
	req.Query = strings.TrimSpace(req.Query)
	if req.Count <= 0 {
		req.Count = DefaultSearchCount
	}
	if req.Count > MaxSearchCount {
		req.Count = MaxSearchCount
	}
	return req
}

func buildOrder(cfg *Config) []string {
	order := make([]string, 0, len(cfg.Fallbacks)+1)
	provider := strings.TrimSpace(cfg.Provider)
	if provider != "" && provider != "auto" {
		order = append(order, provider)
	}
	order = append(order, cfg.Fallbacks...)
	return dedupeOrder(order)
}

func dedupeOrder(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, name)
	}
	if len(result) == 0 {
		return append([]string{}, DefaultFallbackOrder...)
	}
	return result
}

func registerProviders(registry *Registry, cfg *Config) {
	if registry == nil || cfg == nil {
		return
	}
	if p := newSerperProvider(cfg); p != nil {
		registry.Register(p)
	}
	if p := newSearXNGProvider(cfg); p != nil {
		registry.Register(p)
	}
}
