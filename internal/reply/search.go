package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/llm"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/planner"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/websearch"
	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// searchFunc adapts the websearch provider chain to the planner's item
// shape. IDs are left blank; the planner assigns them.
func (s *Service) searchFunc() planner.SearchFunc {
	return func(ctx context.Context, query string, maxResults int) ([]planner.Item, error) {
		if s.searcher == nil {
			return nil, fmt.Errorf("web search not configured")
		}
		resp, err := s.searcher.Search(ctx, websearch.Request{Query: query, Count: maxResults})
		if err != nil {
			return nil, err
		}
		items := make([]planner.Item, 0, len(resp.Results))
		for _, r := range resp.Results {
			items = append(items, planner.Item{
				Title:   r.Title,
				URL:     r.URL,
				Content: r.Description,
			})
		}
		return items, nil
	}
}

// runSearch executes the planner loop and returns its outcome. Planner
// failure is logged and degrades to whatever was gathered; it never fails
// the reply.
func (s *Service) runSearch(ctx context.Context, chatModel llm.ChatModel, conversation []*schema.Message) *planner.Outcome {
	pl := planner.New(chatModel, s.searchFunc(), s.engine(), s.cfg.SearchRounds, s.cfg.SearchResults)
	outcome, err := pl.Run(ctx, conversation)
	if err != nil {
		logx.Warn().
			Str("component", "reply").
			Int("rounds_gathered", len(outcome.Rounds)).
			Err(err).
			Msg("search planning degraded")
	}
	return outcome
}

func (s *Service) engine() *planner.Engine {
	e := planner.NewEngine()
	if len(s.cfg.PlanSchedule) > 0 {
		e.Schedule = s.cfg.PlanSchedule
	}
	e.OnRetry = func(n planner.RetryNotice) {
		logx.Warn().
			Str("component", "reply").
			Int("attempt", n.Attempt+1).
			Dur("next_timeout", n.NextTimeout).
			Dur("backoff", n.Backoff).
			Err(n.Err).
			Msg("planning call retry scheduled")
	}
	return e
}

// searchContext renders the selected results into one system message
// appended ahead of the final generation call.
func searchContext(outcome *planner.Outcome) *schema.Message {
	if outcome == nil || len(outcome.Selected) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("Web search results relevant to the user's question:\n")
	for _, item := range outcome.Selected {
		fmt.Fprintf(&sb, "[%s] %s (%s)\n%s\n", item.ID, item.Title, item.URL, item.Content)
	}
	sb.WriteString("Cite these where they support the answer.")
	return schema.SystemMessage(sb.String())
}
