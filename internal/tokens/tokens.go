package tokens

import (
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderCache   = make(map[string]*tiktoken.Tiktoken)
	encoderCacheMu sync.RWMutex
)

// encoderFor returns a cached tiktoken encoder for the model, falling back
// to cl100k_base for models tiktoken does not know.
func encoderFor(model string) (*tiktoken.Tiktoken, error) {
	encoderCacheMu.RLock()
	if enc, ok := encoderCache[model]; ok {
		encoderCacheMu.RUnlock()
		return enc, nil
	}
	encoderCacheMu.RUnlock()

	encoderCacheMu.Lock()
	defer encoderCacheMu.Unlock()
	if enc, ok := encoderCache[model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	encoderCache[model] = enc
	return enc, nil
}

// Token overhead per message, per the OpenAI cookbook accounting.
const tokensPerMessage = 3

// Estimate counts the prompt tokens of a message list for the given model.
// The estimate feeds key selection; a failed encoder lookup returns zero so
// the token-bound filter degrades to a no-op instead of blocking the reply.
func Estimate(messages []*schema.Message, model string) int {
	enc, err := encoderFor(model)
	if err != nil {
		return 0
	}

	total := 3 // every reply is primed with <|start|>assistant<|message|>
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		total += tokensPerMessage
		total += len(enc.Encode(string(msg.Role), nil, nil))
		total += len(enc.Encode(msg.Content, nil, nil))
		for _, part := range msg.MultiContent {
			if part.Type == schema.ChatMessagePartTypeText {
				total += len(enc.Encode(part.Text, nil, nil))
			}
		}
	}
	return total
}
