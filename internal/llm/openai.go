package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/keypool"
)

// openaiChatModel adapts the OpenAI chat completions API (and every
// OpenAI-compatible endpoint via base URL override) to the eino chat model
// interface.
type openaiChatModel struct {
	client    openai.Client
	modelName string
}

func newOpenAIModel(key keypool.Key, modelName string) (ChatModel, error) {
	if key.Secret == "" {
		return nil, fmt.Errorf("openai key secret is empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(key.Secret)}
	if key.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(key.BaseURL))
	}
	return &openaiChatModel{
		client:    openai.NewClient(opts...),
		modelName: modelName,
	}, nil
}

func (m *openaiChatModel) buildParams(input []*schema.Message, opts ...model.Option) openai.ChatCompletionNewParams {
	options := model.GetCommonOptions(&model.Options{}, opts...)

	modelName := m.modelName
	if options.Model != nil && *options.Model != "" {
		modelName = *options.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    modelName,
		Messages: toChatMessages(input),
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Temperature))
	}
	if options.TopP != nil {
		params.TopP = openai.Float(float64(*options.TopP))
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(*options.MaxTokens))
	}
	return params
}

func (m *openaiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(input, opts...))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	out := &schema.Message{Role: schema.Assistant}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.ResponseMeta = &schema.ResponseMeta{
			FinishReason: string(resp.Choices[0].FinishReason),
		}
	}
	if out.ResponseMeta == nil {
		out.ResponseMeta = &schema.ResponseMeta{}
	}
	out.ResponseMeta.Usage = &schema.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

func (m *openaiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	params := m.buildParams(input, opts...)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	upstream := m.client.Chat.Completions.NewStreaming(ctx, params)
	reader, writer := schema.Pipe[*schema.Message](8)

	go func() {
		defer writer.Close()
		for upstream.Next() {
			chunk := upstream.Current()

			delta := &schema.Message{Role: schema.Assistant}
			emit := false
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					delta.Content += choice.Delta.Content
					emit = true
				}
				if choice.FinishReason != "" {
					delta.ResponseMeta = &schema.ResponseMeta{FinishReason: string(choice.FinishReason)}
					emit = true
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				if delta.ResponseMeta == nil {
					delta.ResponseMeta = &schema.ResponseMeta{}
				}
				delta.ResponseMeta.Usage = &schema.TokenUsage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
				emit = true
			}
			if !emit {
				continue
			}
			if closed := writer.Send(delta, nil); closed {
				return
			}
		}
		if err := upstream.Err(); err != nil && err != io.EOF {
			writer.Send(nil, fmt.Errorf("chat completion stream: %w", err))
		}
	}()

	return reader, nil
}

func toChatMessages(input []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			result = append(result, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			if len(msg.MultiContent) > 0 {
				result = append(result, openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfArrayOfContentParts: toContentParts(msg.MultiContent),
						},
					},
				})
			} else {
				result = append(result, openai.UserMessage(msg.Content))
			}
		}
	}
	return result
}

func toContentParts(parts []schema.ChatMessagePart) []openai.ChatCompletionContentPartUnionParam {
	result := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case schema.ChatMessagePartTypeImageURL:
			if part.ImageURL == nil || part.ImageURL.URL == "" {
				continue
			}
			result = append(result, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
						URL: part.ImageURL.URL,
					},
				},
			})
		default:
			if part.Text == "" {
				continue
			}
			result = append(result, openai.ChatCompletionContentPartUnionParam{
				OfText: &openai.ChatCompletionContentPartTextParam{
					Text: part.Text,
				},
			})
		}
	}
	return result
}

var _ model.BaseChatModel = (*openaiChatModel)(nil)
