// Package llm builds chat model clients for the configured key kinds.
// Everything above this package talks to the eino model interface only;
// provider-specific request and response shaping stays behind it.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/keypool"
)

// ChatModel is the language-model collaborator surface of the orchestration
// core: eino's base chat model, with temperature and top-p passed as call
// options.
type ChatModel = model.BaseChatModel

// New builds a chat model client for key, bound to modelName.
func New(ctx context.Context, key keypool.Key, modelName string) (ChatModel, error) {
	switch key.Kind {
	case keypool.KindGoogle:
		return newGoogleModel(ctx, key, modelName)
	case keypool.KindOpenAI, "":
		return newOpenAIModel(key, modelName)
	default:
		return nil, fmt.Errorf("unsupported key kind %q", key.Kind)
	}
}
