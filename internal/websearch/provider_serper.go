package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type serperProvider struct {
	cfg SerperConfig
}

func newSerperProvider(cfg *Config) Provider {
	if cfg.Serper.APIKey == "" {
		return nil
	}
	return &serperProvider{cfg: cfg.Serper}
}

func (p *serperProvider) Name() string {
	return ProviderSerper
}

func (p *serperProvider) Search(ctx context.Context, req Request) (*Response, error) {
	if p.cfg.BaseURL == "" {
		return nil, errors.New("serper base url is empty")
	}
	count := req.Count
	if count <= 0 {
		count = DefaultSearchCount
	}

	payload := map[string]any{
		"q":   req.Query,
		"num": count,
	}
	country := req.Country
	if country == "" {
		country = p.cfg.Country
	}
	if country != "" {
		payload["gl"] = country
	}
	lang := req.Language
	if lang == "" {
		lang = p.cfg.Language
	}
	if lang != "" {
		payload["hl"] = lang
	}

	start := time.Now()
	data, err := postJSON(ctx, p.cfg.BaseURL, map[string]string{
		"X-API-KEY": p.cfg.APIKey,
	}, payload, p.cfg.TimeoutSecs)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic"`
		AnswerBox struct {
			Answer  string `json:"answer"`
			Snippet string `json:"snippet"`
		} `json:"answerBox"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Organic))
	for _, entry := range resp.Organic {
		results = append(results, Result{
			Title:       strings.TrimSpace(entry.Title),
			URL:         entry.Link,
			Description: strings.TrimSpace(entry.Snippet),
			Published:   entry.Date,
			SiteName:    resolveSiteName(entry.Link),
		})
	}

	answer := resp.AnswerBox.Answer
	if answer == "" {
		answer = resp.AnswerBox.Snippet
	}

	return &Response{
		Query:     req.Query,
		Provider:  ProviderSerper,
		Count:     len(results),
		TookMs:    time.Since(start).Milliseconds(),
		Results:   results,
		Answer:    strings.TrimSpace(answer),
		NoResults: len(results) == 0,
	}, nil
}
