package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/keypool"
	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// newGoogleModel builds a Gemini chat model over the Google Generative API
// for the given key.
func newGoogleModel(ctx context.Context, key keypool.Key, modelName string) (ChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  key.Secret,
		Backend: genai.BackendGeminiAPI,
	}
	if key.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = key.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Str("key_id", key.ID).Msg("failed to create Gemini client")
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  modelName,
	})
	if err != nil {
		logx.Error().Err(err).Str("model", modelName).Msg("failed to create Gemini chat model")
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}
	return cm, nil
}
