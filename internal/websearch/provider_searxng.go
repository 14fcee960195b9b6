package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"
)

type searxngProvider struct {
	cfg SearXNGConfig
}

func newSearXNGProvider(cfg *Config) Provider {
	if cfg.SearXNG.BaseURL == "" {
		return nil
	}
	return &searxngProvider{cfg: cfg.SearXNG}
}

func (p *searxngProvider) Name() string {
	return ProviderSearXNG
}

func (p *searxngProvider) Search(ctx context.Context, req Request) (*Response, error) {
	if p.cfg.BaseURL == "" {
		return nil, errors.New("searxng base url is empty")
	}
	searchURL, err := url.Parse(strings.TrimRight(p.cfg.BaseURL, "/") + "/search")
	if err != nil {
		return nil, err
	}

	queryValues := searchURL.Query()
	queryValues.Set("q", req.Query)
	queryValues.Set("format", "json")
	lang := req.Language
	if lang == "" {
		lang = p.cfg.Language
	}
	if lang != "" {
		queryValues.Set("language", lang)
	}
	searchURL.RawQuery = queryValues.Encode()

	start := time.Now()
	data, err := getJSON(ctx, searchURL.String(), map[string]string{
		"Accept": "application/json",
	}, p.cfg.TimeoutSecs)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			Content       string `json:"content"`
			PublishedDate string `json:"publishedDate"`
		} `json:"results"`
		Answers []json.RawMessage `json:"answers"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	count := req.Count
	if count <= 0 {
		count = DefaultSearchCount
	}
	results := make([]Result, 0, count)
	for _, entry := range resp.Results {
		if len(results) >= count {
			break
		}
		results = append(results, Result{
			Title:       strings.TrimSpace(entry.Title),
			URL:         entry.URL,
			Description: strings.TrimSpace(entry.Content),
			Published:   entry.PublishedDate,
			SiteName:    resolveSiteName(entry.URL),
		})
	}

	return &Response{
		Query:     req.Query,
		Provider:  ProviderSearXNG,
		Count:     len(results),
		TookMs:    time.Since(start).Milliseconds(),
		Results:   results,
		Answer:    firstAnswer(resp.Answers),
		NoResults: len(results) == 0,
	}, nil
}

// SearXNG emits answers either as plain strings or as objects with an
// "answer" field depending on version.
func firstAnswer(raw []json.RawMessage) string {
	for _, entry := range raw {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			return strings.TrimSpace(s)
		}
		var obj struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal(entry, &obj); err == nil && obj.Answer != "" {
			return strings.TrimSpace(obj.Answer)
		}
	}
	return ""
}
