package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerperProviderSearch(t *testing.T) {
	var gotBody map[string]any
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"organic": [
				{"title": "Result One", "link": "https://example.com/one", "snippet": "first", "date": "2024-01-01"},
				{"title": "Result Two", "link": "https://example.com/two", "snippet": "second"}
			],
			"answerBox": {"answer": "42"}
		}`))
	}))
	defer server.Close()

	provider := &serperProvider{cfg: SerperConfig{
		APIKey:      "test-key",
		BaseURL:     server.URL,
		TimeoutSecs: 5,
	}}

	resp, err := provider.Search(context.Background(), Request{Query: "meaning of life", Count: 2})
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "meaning of life", gotBody["q"])
	assert.Equal(t, float64(2), gotBody["num"])

	assert.Equal(t, ProviderSerper, resp.Provider)
	assert.Equal(t, "42", resp.Answer)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Result One", resp.Results[0].Title)
	assert.Equal(t, "example.com", resp.Results[0].SiteName)
	assert.False(t, resp.NoResults)
}

func TestSearXNGProviderSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "test query", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"results": [
				{"title": "A", "url": "https://a.example/x", "content": "alpha"},
				{"title": "B", "url": "https://b.example/y", "content": "beta"},
				{"title": "C", "url": "https://c.example/z", "content": "gamma"}
			],
			"answers": ["short answer"]
		}`))
	}))
	defer server.Close()

	provider := &searxngProvider{cfg: SearXNGConfig{
		BaseURL:     server.URL,
		TimeoutSecs: 5,
	}}

	resp, err := provider.Search(context.Background(), Request{Query: "test query", Count: 2})
	require.NoError(t, err)

	// Count caps results client-side; SearXNG has no num parameter.
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "A", resp.Results[0].Title)
	assert.Equal(t, "short answer", resp.Answer)
}

func TestSearchFallsBackToNextProvider(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [{"title": "ok", "url": "https://x", "content": "c"}]}`))
	}))
	defer working.Close()

	cfg := &Config{
		Provider:  ProviderSerper,
		Fallbacks: []string{ProviderSearXNG},
		Serper:    SerperConfig{APIKey: "k", BaseURL: failing.URL, TimeoutSecs: 5},
		SearXNG:   SearXNGConfig{BaseURL: working.URL, TimeoutSecs: 5},
	}

	resp, err := NewSearcher(cfg).Search(context.Background(), Request{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, ProviderSearXNG, resp.Provider)
	require.Len(t, resp.Results, 1)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	_, err := NewSearcher(&Config{}).Search(context.Background(), Request{Query: "   "})
	require.Error(t, err)
}

func TestSearchNoProvidersConfigured(t *testing.T) {
	s := NewSearcher(&Config{CacheTTLSecs: 0})
	_, err := s.Search(context.Background(), Request{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no search providers")
}

func TestSearcherServesRepeatedQueriesFromCache(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [{"title": "ok", "url": "https://x", "content": "c"}]}`))
	}))
	defer server.Close()

	s := NewSearcher(&Config{
		Provider:     ProviderSearXNG,
		SearXNG:      SearXNGConfig{BaseURL: server.URL, TimeoutSecs: 5},
		CacheTTLSecs: 300,
	})

	first, err := s.Search(context.Background(), Request{Query: "repeat me"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := s.Search(context.Background(), Request{Query: "repeat me"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, hits)
}

func TestResultCacheTTL(t *testing.T) {
	current := time.Unix(0, 0)
	c := newResultCache(5 * time.Minute)
	c.now = func() time.Time { return current }

	req := Request{Query: "cached", Count: 3}
	c.put(req, &Response{Query: "cached", Results: []Result{{Title: "t"}}})

	got, ok := c.get(req)
	require.True(t, ok)
	assert.True(t, got.Cached)
	assert.Equal(t, "cached", got.Query)

	t.Run("case and whitespace insensitive key", func(t *testing.T) {
		_, ok := c.get(Request{Query: "  CACHED ", Count: 3})
		assert.True(t, ok)
	})

	t.Run("different count misses", func(t *testing.T) {
		_, ok := c.get(Request{Query: "cached", Count: 5})
		assert.False(t, ok)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		current = current.Add(5 * time.Minute)
		_, ok := c.get(req)
		assert.False(t, ok)
	})
}

func TestNormalizeRequestBounds(t *testing.T) {
	assert.Equal(t, DefaultSearchCount, normalizeRequest(Request{Query: "q"}).Count)
	assert.Equal(t, MaxSearchCount, normalizeRequest(Request{Query: "q", Count: 99}).Count)
}

func TestBuildOrderDedupes(t *testing.T) {
	cfg := (&Config{Provider: ProviderSerper, Fallbacks: []string{ProviderSerper, ProviderSearXNG}}).WithDefaults()
	assert.Equal(t, []string{ProviderSerper, ProviderSearXNG}, buildOrder(cfg))

	auto := (&Config{}).WithDefaults()
	assert.Equal(t, DefaultFallbackOrder, buildOrder(auto))
}
