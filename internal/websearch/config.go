package websearch

import "strings"

// Provider names.
const (
	ProviderSerper  = "serper"
	ProviderSearXNG = "searxng"
)

// Search limits.
const (
	DefaultSearchCount = 5
	MaxSearchCount     = 10
	DefaultTimeoutSecs = 15
)

// DefaultFallbackOrder is used when no explicit chain is configured.
var DefaultFallbackOrder = []string{ProviderSerper, ProviderSearXNG}

// Config selects and configures search providers, populated by envconfig.
type Config struct {
	Provider  string   `envconfig:"WEBSEARCH_PROVIDER" default:"auto"`
	Fallbacks []string `envconfig:"WEBSEARCH_FALLBACKS"`

	Serper  SerperConfig
	SearXNG SearXNGConfig

	CacheTTLSecs int `envconfig:"WEBSEARCH_CACHE_TTL_SECS" default:"300"`
}

// SerperConfig configures the serper.dev provider.
type SerperConfig struct {
	APIKey      string `envconfig:"SERPER_API_KEY"`
	BaseURL     string `envconfig:"SERPER_BASE_URL" default:"https://google.serper.dev/search"`
	Country     string `envconfig:"SERPER_COUNTRY"`
	Language    string `envconfig:"SERPER_LANGUAGE"`
	TimeoutSecs int    `envconfig:"SERPER_TIMEOUT_SECS" default:"15"`
}

// SearXNGConfig configures a self-hosted SearXNG instance.
type SearXNGConfig struct {
	BaseURL     string `envconfig:"SEARXNG_BASE_URL"`
	Language    string `envconfig:"SEARXNG_LANGUAGE"`
	TimeoutSecs int    `envconfig:"SEARXNG_TIMEOUT_SECS" default:"15"`
}

// WithDefaults returns a copy with zero values filled in.
func (c *Config) WithDefaults() *Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if strings.TrimSpace(out.Provider) == "" {
		out.Provider = "auto"
	}
	if out.Serper.BaseURL == "" {
		out.Serper.BaseURL = "https://google.serper.dev/search"
	}
	if out.Serper.TimeoutSecs <= 0 {
		out.Serper.TimeoutSecs = DefaultTimeoutSecs
	}
	if out.SearXNG.TimeoutSecs <= 0 {
		out.SearXNG.TimeoutSecs = DefaultTimeoutSecs
	}
	if out.CacheTTLSecs < 0 {
		out.CacheTTLSecs = 0
	}
	return &out
}
