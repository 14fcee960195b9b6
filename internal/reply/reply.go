package reply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/conversation"
	errx "github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/core/error"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/jobs"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/keypool"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/llm"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/planner"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/store"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/tokens"
	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/websearch"
	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// Config tunes one reply service instance.
type Config struct {
	MaxContext        int
	ProgressInterval  time.Duration
	RateLimitAttempts int
	RateLimitBackoff  time.Duration
	StreamIdleTimeout time.Duration
	SearchRounds      int
	SearchResults     int
	PlanSchedule      []time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxContext <= 0 {
		c.MaxContext = conversation.DefaultMaxContext
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.RateLimitAttempts <= 0 {
		c.RateLimitAttempts = 3
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = 2 * time.Second
	}
	if c.StreamIdleTimeout <= 0 {
		c.StreamIdleTimeout = 60 * time.Second
	}
	return c
}

// Request is one turn: the raw user message, its attachments, and the
// conversation linkage. ParentID points at the last persisted message of
// the room, usually the previous assistant reply.
type Request struct {
	UserID        string
	RoomID        int64
	MessageID     string
	UserMessageID string
	ParentID      string
	Prompt        string
	Attachments   []string
	Model         string
	Roles         []string
	Temperature   *float32
	TopP          *float32
	MaxTokens     int
	UseSearch     bool
	ImageCapable  bool
	Progress      ProgressFunc
}

// Result is the completed reply.
type Result struct {
	MessageID string
	Text      string
	Model     string
	Usage     *schema.TokenUsage
	Rounds    []planner.Round
}

// Service orchestrates one reply generation end to end: credential
// selection, job registration, context assembly, optional search planning,
// and the final streamed call.
type Service struct {
	selector  *keypool.Selector
	lockout   *keypool.Lockout
	jobs      *jobs.Registry
	store     store.Store
	assembler *conversation.Assembler
	mat       *conversation.Materializer
	searcher  *websearch.Searcher
	cfg       Config

	// newModel and sleep are injectable for tests.
	newModel func(ctx context.Context, key keypool.Key, modelName string) (llm.ChatModel, error)
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewService(
	selector *keypool.Selector,
	lockout *keypool.Lockout,
	registry *jobs.Registry,
	st store.Store,
	assembler *conversation.Assembler,
	mat *conversation.Materializer,
	searcher *websearch.Searcher,
	cfg Config,
) *Service {
	return &Service{
		selector:  selector,
		lockout:   lockout,
		jobs:      registry,
		store:     st,
		assembler: assembler,
		mat:       mat,
		searcher:  searcher,
		cfg:       cfg.withDefaults(),
		newModel:  llm.New,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// Abort cancels the running generation for a user+room, returning the id
// of the message it was producing. Safe to call repeatedly.
func (s *Service) Abort(userID string, roomID int64) (string, bool) {
	return s.jobs.Abort(userID, roomID)
}

// Generate produces the assistant reply for one user turn. Partial text is
// delivered through req.Progress; the returned Result carries the final
// text and usage. Errors are classified: use errx.UserMessage for the
// client-facing string.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("missing model")
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	if req.UserMessageID == "" {
		req.UserMessageID = uuid.NewString()
	}

	jobCtx, finish, err := s.jobs.Start(ctx, req.UserID, req.RoomID, req.MessageID)
	if err != nil {
		return nil, err
	}
	defer finish()

	turns, err := s.assembler.Assemble(jobCtx, req.ParentID, s.cfg.MaxContext, req.ImageCapable)
	if err != nil {
		return nil, err
	}
	turns = append(turns, s.currentTurn(req))

	msgs, bindings := s.buildMessages(turns, req.ImageCapable)
	if len(bindings) > 0 {
		logx.Debug().
			Str("component", "reply").
			Str("message_id", req.MessageID).
			Str("images", conversation.Manifest(bindings)).
			Msg("bound images for request")
	}
	est := tokens.Estimate(msgs, req.Model)

	opts := buildOptions(req)

	var outcome *planner.Outcome
	if req.UseSearch {
		outcome = s.planSearch(jobCtx, req, msgs, est)
		if sysMsg := searchContext(outcome); sysMsg != nil {
			msgs = append([]*schema.Message{sysMsg}, msgs...)
			est = tokens.Estimate(msgs, req.Model)
		}
	}

	result, err := s.generateWithRotation(jobCtx, req, msgs, est, opts)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		result.Rounds = outcome.Rounds
	}

	if err := s.persist(jobCtx, req, result); err != nil {
		logx.Error().
			Str("component", "reply").
			Str("message_id", req.MessageID).
			Err(err).
			Msg("persisting reply failed")
	}
	return result, nil
}

// currentTurn shapes the incoming user message like an assembled history
// turn so binding treats it uniformly.
func (s *Service) currentTurn(req Request) conversation.Turn {
	text := req.Prompt
	var images []string
	if req.ImageCapable {
		if s.mat != nil {
			text = s.mat.Rewrite(text)
		}
		text, images = conversation.ExtractImages(text)
	} else {
		text = conversation.NeutralizeBase64(text)
	}
	images = append(images, req.Attachments...)
	return conversation.Turn{
		MessageID: req.UserMessageID,
		Role:      store.RoleUser,
		Text:      text,
		Images:    images,
	}
}

func (s *Service) buildMessages(turns []conversation.Turn, imageCapable bool) ([]*schema.Message, []conversation.Binding) {
	if !imageCapable {
		return conversation.Messages(turns), nil
	}
	bindings := conversation.BindImages(turns)
	return conversation.ImageMessages(turns, bindings), bindings
}

func buildOptions(req Request) []model.Option {
	var opts []model.Option
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}
	if req.TopP != nil {
		opts = append(opts, model.WithTopP(*req.TopP))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	return opts
}

// planSearch picks a credential for the planning calls and runs the loop.
// Any failure here degrades to answering without search.
func (s *Service) planSearch(ctx context.Context, req Request, msgs []*schema.Message, est int) *planner.Outcome {
	key, err := s.selector.Pick(ctx, req.Roles, req.Model, est)
	if err != nil {
		logx.Warn().Str("component", "reply").Err(err).Msg("no credential for search planning, skipping search")
		return nil
	}
	chatModel, err := s.newModel(ctx, key, req.Model)
	if err != nil {
		logx.Warn().Str("component", "reply").Err(err).Msg("planner model init failed, skipping search")
		return nil
	}
	return s.runSearch(ctx, chatModel, msgs)
}

// generateWithRotation retries the whole generation on rate limits,
// locking out the throttled credential and picking a fresh one each time.
// Cancellation and all other errors end the loop immediately.
func (s *Service) generateWithRotation(ctx context.Context, req Request, msgs []*schema.Message, est int, opts []model.Option) (*Result, error) {
	progress := newThrottle(req.Progress, s.cfg.ProgressInterval)

	var lastErr error
	for attempt := 0; attempt < s.cfg.RateLimitAttempts; attempt++ {
		key, err := s.selector.Pick(ctx, req.Roles, req.Model, est)
		if err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}
		chatModel, err := s.newModel(ctx, key, req.Model)
		if err != nil {
			return nil, err
		}

		result, err := s.streamOnce(ctx, chatModel, msgs, opts, progress)
		if err == nil {
			result.MessageID = req.MessageID
			result.Model = req.Model
			logUsage(req, result)
			return result, nil
		}

		if cause := context.Cause(ctx); cause != nil {
			return nil, cause
		}
		if !errx.IsRateLimit(err) {
			return nil, err
		}

		s.lockout.Lock(key.Secret)
		lastErr = err
		logx.Warn().
			Str("component", "reply").
			Str("key_id", key.ID).
			Int("attempt", attempt+1).
			Msg("rate limited, rotating credential")
		if attempt < s.cfg.RateLimitAttempts-1 {
			if sleepErr := s.sleep(ctx, s.cfg.RateLimitBackoff); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return nil, lastErr
}

// streamOnce drives a single streamed generation under the idle watchdog.
// The watchdog fires as a hard failure here; there is no escalation
// schedule for the final call. Partial text is emitted raw: a data URI
// still being streamed must not be materialized until the stream ends, or
// truncated payloads that happen to decode would be written to storage.
func (s *Service) streamOnce(ctx context.Context, chatModel llm.ChatModel, msgs []*schema.Message, opts []model.Option, progress *throttle) (*Result, error) {
	engine := &planner.Engine{Schedule: []time.Duration{s.cfg.StreamIdleTimeout}}
	return planner.Run(ctx, engine, func(attemptCtx context.Context, wd *planner.Watchdog) (*Result, error) {
		reader, err := chatModel.Stream(attemptCtx, msgs, opts...)
		if err != nil {
			return nil, err
		}
		defer reader.Close()

		var sb strings.Builder
		var usage *schema.TokenUsage
		for {
			chunk, recvErr := reader.Recv()
			if errors.Is(recvErr, io.EOF) {
				break
			}
			if recvErr != nil {
				return nil, recvErr
			}
			wd.Reset()
			if chunk == nil {
				continue
			}
			if chunk.Content != "" {
				sb.WriteString(chunk.Content)
				progress.Emit(sb.String())
			}
			if chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
				usage = chunk.ResponseMeta.Usage
			}
		}

		final := s.present(sb.String())
		progress.Flush(final)
		return &Result{Text: final, Usage: usage}, nil
	})
}

// present materializes any inline data-URI images to durable storage and
// swaps in their paths, so clients never receive raw base64.
func (s *Service) present(text string) string {
	if s.mat == nil {
		return text
	}
	return s.mat.Rewrite(text)
}

func logUsage(req Request, result *Result) {
	event := logx.Info().
		Str("component", "reply").
		Str("user_id", req.UserID).
		Int64("room_id", req.RoomID).
		Str("model", req.Model)
	if result.Usage != nil {
		event = event.
			Int("prompt_tokens", result.Usage.PromptTokens).
			Int("completion_tokens", result.Usage.CompletionTokens).
			Int("total_tokens", result.Usage.TotalTokens)
	}
	event.Msg("reply generated")
}

func (s *Service) persist(ctx context.Context, req Request, result *Result) error {
	now := time.Now()
	// Persist the materialized form so records carry storage paths, never
	// raw base64 payloads.
	userMsg := &store.Message{
		ID:        req.UserMessageID,
		UserID:    req.UserID,
		RoomID:    req.RoomID,
		Role:      store.RoleUser,
		Content:   s.present(req.Prompt),
		Images:    req.Attachments,
		ParentID:  req.ParentID,
		Status:    store.StatusNormal,
		CreatedAt: now,
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return err
	}
	assistantMsg := &store.Message{
		ID:        req.MessageID,
		UserID:    req.UserID,
		RoomID:    req.RoomID,
		Role:      store.RoleAssistant,
		Content:   result.Text,
		ParentID:  req.UserMessageID,
		Status:    store.StatusNormal,
		Model:     req.Model,
		CreatedAt: now,
	}
	if err := s.store.SaveMessage(ctx, assistantMsg); err != nil {
		return err
	}
	return s.store.UpdateRoomModel(ctx, req.UserID, req.RoomID, req.Model)
}
