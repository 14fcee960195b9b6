package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// Round bounds.
const (
	MinRounds  = 1
	MaxRounds  = 6
	MinResults = 1
	MaxResults = 10

	DefaultRounds  = 3
	DefaultResults = 5
)

// Item is one search result carried through the planner loop. IDs take the
// form "<round>.<item>", both 1-based, so the planner can select them.
type Item struct {
	ID      string
	Title   string
	URL     string
	Content string
}

// Round records one executed search, or one failed search with a note.
type Round struct {
	Query string
	Items []Item
	Note  string
}

// Outcome is what the planner hands to the answer phase. Degraded marks a
// planner failure: Rounds still holds everything gathered, and Selected
// falls back to all items.
type Outcome struct {
	Rounds   []Round
	Selected []Item
	Summary  string
	Degraded bool
}

// SearchFunc issues one search query on behalf of the planner.
type SearchFunc func(ctx context.Context, query string, maxResults int) ([]Item, error)

// Planner decides, round by round, whether more searching is needed before
// answering, and which gathered results matter.
type Planner struct {
	chatModel  model.BaseChatModel
	search     SearchFunc
	engine     *Engine
	maxRounds  int
	maxResults int
}

func New(chatModel model.BaseChatModel, search SearchFunc, engine *Engine, maxRounds, maxResults int) *Planner {
	if engine == nil {
		engine = NewEngine()
	}
	return &Planner{
		chatModel:  chatModel,
		search:     search,
		engine:     engine,
		maxRounds:  clamp(maxRounds, MinRounds, MaxRounds),
		maxResults: clamp(maxResults, MinResults, MaxResults),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Run executes the planning loop. On planner failure it returns the
// degraded outcome together with the error; the caller decides whether to
// proceed with what was gathered.
func (p *Planner) Run(ctx context.Context, conversation []*schema.Message) (*Outcome, error) {
	outcome := &Outcome{}
	seenQueries := make(map[string]bool)
	selectedIDs := make(map[string]bool)

	for round := 0; round < p.maxRounds; round++ {
		firstRound := round == 0
		msgs := p.buildPrompt(conversation, outcome, firstRound)

		plan, err := p.decide(ctx, msgs, firstRound)
		if err != nil {
			logx.Warn().
				Str("component", "planner").
				Int("round", round).
				Err(err).
				Msg("planning call failed, degrading to gathered rounds")
			outcome.Degraded = true
			outcome.Selected = allItems(outcome.Rounds)
			return outcome, err
		}

		if firstRound {
			outcome.Summary = plan.Summary
		}
		for _, id := range plan.SelectedIDs {
			selectedIDs[id] = true
		}

		if plan.Action == ActionStop {
			break
		}

		query := strings.ToLower(plan.Query)
		if seenQueries[query] {
			logx.Debug().
				Str("component", "planner").
				Str("query", plan.Query).
				Msg("repeated query, stopping loop")
			break
		}
		seenQueries[query] = true

		items, searchErr := p.search(ctx, plan.Query, p.maxResults)
		if searchErr != nil || len(items) == 0 {
			note := "no results"
			if searchErr != nil {
				note = searchErr.Error()
			}
			outcome.Rounds = append(outcome.Rounds, Round{Query: plan.Query, Note: note})
			break
		}
		roundNum := len(outcome.Rounds) + 1
		for i := range items {
			items[i].ID = fmt.Sprintf("%d.%d", roundNum, i+1)
		}
		outcome.Rounds = append(outcome.Rounds, Round{Query: plan.Query, Items: items})
	}

	outcome.Selected = filterItems(outcome.Rounds, selectedIDs)
	return outcome, nil
}

func allItems(rounds []Round) []Item {
	var out []Item
	for _, r := range rounds {
		out = append(out, r.Items...)
	}
	return out
}

func filterItems(rounds []Round, selected map[string]bool) []Item {
	if len(selected) == 0 {
		return nil
	}
	var out []Item
	for _, r := range rounds {
		for _, item := range r.Items {
			if selected[item.ID] {
				out = append(out, item)
			}
		}
	}
	return out
}

// decide runs one structured planning call under the retry engine. The
// attempt streams so the idle watchdog can observe progress; a response
// that fails validation consumes the attempt's slot like any other error.
func (p *Planner) decide(ctx context.Context, msgs []*schema.Message, requireSummary bool) (*Plan, error) {
	return Run(ctx, p.engine, func(attemptCtx context.Context, wd *Watchdog) (*Plan, error) {
		reader, err := p.chatModel.Stream(attemptCtx, msgs)
		if err != nil {
			return nil, fmt.Errorf("plan stream open: %w", err)
		}
		defer reader.Close()

		var sb strings.Builder
		for {
			chunk, recvErr := reader.Recv()
			if errors.Is(recvErr, io.EOF) {
				break
			}
			if recvErr != nil {
				return nil, fmt.Errorf("plan stream recv: %w", recvErr)
			}
			wd.Reset()
			if chunk != nil {
				sb.WriteString(chunk.Content)
			}
		}
		return ParsePlan(sb.String(), requireSummary)
	})
}

const planSystemPrompt = `You decide whether a web search is needed before answering the user.
Reply with exactly one JSON object and nothing else:
{"action":"search","query":"<next query>","reason":"<why>","selectedIds":["1.1"],"summary":"<condensed conversation summary>"}
Rules:
- "action" is "search" to run one more query, or "stop" when enough has been gathered.
- "query" is required when action is "search". Never repeat a query already run.
- "selectedIds" lists the ids of results worth citing in the final answer; ids are "<round>.<item>" as shown in the results.
- "summary" condenses the conversation; it is required on the first call.`

func (p *Planner) buildPrompt(conversation []*schema.Message, outcome *Outcome, firstRound bool) []*schema.Message {
	msgs := []*schema.Message{schema.SystemMessage(planSystemPrompt)}
	if firstRound {
		msgs = append(msgs, conversation...)
		msgs = append(msgs, schema.UserMessage("Decide the next step. Include the required summary."))
		return msgs
	}

	var sb strings.Builder
	sb.WriteString("Conversation summary:\n")
	sb.WriteString(outcome.Summary)
	sb.WriteString("\n\nSearch rounds so far:\n")
	sb.WriteString(renderRounds(outcome.Rounds))
	sb.WriteString("\nDecide the next step.")
	msgs = append(msgs, schema.UserMessage(sb.String()))
	return msgs
}

func renderRounds(rounds []Round) string {
	var sb strings.Builder
	for i, r := range rounds {
		fmt.Fprintf(&sb, "Round %d query: %s\n", i+1, r.Query)
		if r.Note != "" {
			fmt.Fprintf(&sb, "  note: %s\n", r.Note)
		}
		for _, item := range r.Items {
			fmt.Fprintf(&sb, "  [%s] %s (%s)\n      %s\n", item.ID, item.Title, item.URL, item.Content)
		}
	}
	return sb.String()
}
