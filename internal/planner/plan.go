package planner

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	errx "github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/core/error"
	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// Action is the planner's decision for the current round.
type Action string

const (
	ActionSearch Action = "search"
	ActionStop   Action = "stop"
)

// basic safety limits to avoid pathological model outputs
const (
	maxPlanLen    = 64 * 1024 // 64KB
	maxErrSnippet = 200
)

// Plan is the structured decision produced by one planning call.
type Plan struct {
	Action      Action   `json:"action"`
	Query       string   `json:"query"`
	Reason      string   `json:"reason"`
	SelectedIDs []string `json:"selectedIds"`
	Summary     string   `json:"summary"`
}

// ParsePlan extracts and validates a Plan from raw model output. The model
// is instructed to answer with a bare JSON object but in practice wraps it
// in markdown fences or prose, so parsing scans for the outermost braces.
func ParsePlan(content string, requireSummary bool) (plan *Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "plan_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("plan parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			plan = nil
		}
	}()

	if len(content) > maxPlanLen {
		logx.Warn().
			Str("component", "plan_parser").
			Int("max_len", maxPlanLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxPlanLen]
	}

	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, fmt.Errorf("plan extract: %w (content: %s)", err, safeSnippet(content))
	}

	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("plan unmarshal: %w (content: %s)", err, safeSnippet(raw))
	}

	p.Action = Action(strings.ToLower(strings.TrimSpace(string(p.Action))))
	p.Query = strings.TrimSpace(p.Query)
	p.Summary = strings.TrimSpace(p.Summary)

	switch p.Action {
	case ActionSearch:
		if p.Query == "" {
			return nil, fmt.Errorf("plan action %q missing query", p.Action)
		}
	case ActionStop:
	default:
		return nil, fmt.Errorf("plan unknown action %q", p.Action)
	}
	if requireSummary && p.Summary == "" {
		return nil, fmt.Errorf("plan missing required summary")
	}
	return &p, nil
}

func extractJSONObject(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no json object found")
	}
	return content[start : end+1], nil
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
