package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/store"
	logx "github.com/1VeniVediVeci1/chatgpt-web-sub000/pkg/logger"
)

// DefaultMaxContext bounds the context window when the caller passes no
// explicit turn budget.
const DefaultMaxContext = 10

// Turn is one assembled context entry: the cleaned text plus the image
// URLs lifted out of it, oldest-first in the assembled slice.
type Turn struct {
	MessageID string
	Role      store.Role
	Text      string
	Images    []string
}

// Assembler rebuilds a bounded context window by walking the persisted
// message chain backward from a starting id.
type Assembler struct {
	store store.Store
	mat   *Materializer
}

// NewAssembler creates an assembler over the conversation store. The
// materializer may be nil when no file store is wired (data URIs are then
// only neutralised, never persisted).
func NewAssembler(st store.Store, mat *Materializer) *Assembler {
	return &Assembler{store: st, mat: mat}
}

// Assemble walks parent links from startID collecting at most maxCount
// turns, oldest first. Deleted messages are skipped transparently via their
// own parent link; an unresolvable id ends the walk without error.
//
// When withImages is set, image references are extracted per turn through
// the rule table and data-URI payloads are materialised to the file store;
// otherwise inline base64 is only neutralised.
func (a *Assembler) Assemble(ctx context.Context, startID string, maxCount int, withImages bool) ([]Turn, error) {
	if maxCount <= 0 {
		maxCount = DefaultMaxContext
	}

	var reversed []Turn
	id := startID
	for id != "" && len(reversed) < maxCount {
		msg, err := a.store.GetMessageByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrMessageNotFound) {
				break
			}
			return nil, fmt.Errorf("resolve message %s: %w", id, err)
		}
		if msg.Status == store.StatusDeleted {
			id = msg.ParentID
			continue
		}

		reversed = append(reversed, a.buildTurn(msg, withImages))
		id = msg.ParentID
	}

	// Collected newest-first; flip to the order models expect.
	turns := make([]Turn, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		turns = append(turns, reversed[i])
	}

	logx.Debug().
		Str("start_id", startID).
		Int("turns", len(turns)).
		Bool("with_images", withImages).
		Msg("context assembled")
	return turns, nil
}

func (a *Assembler) buildTurn(msg *store.Message, withImages bool) Turn {
	text := msg.Content
	if a.mat != nil {
		text = a.mat.Rewrite(text)
	}

	turn := Turn{MessageID: msg.ID, Role: msg.Role}
	if withImages {
		clean, urls := ExtractImages(text)
		turn.Text = clean
		turn.Images = urls
		// Uploaded attachments join the extracted references.
		for _, p := range msg.Images {
			turn.Images = append(turn.Images, a.resolveUpload(p))
		}
	} else {
		turn.Text = NeutralizeBase64(text)
	}
	return turn
}

func (a *Assembler) resolveUpload(path string) string {
	if a.mat != nil {
		return a.mat.Resolve(path)
	}
	return path
}

// Messages renders assembled turns as plain chat messages, dropping image
// placeholders down to their neutral form.
func Messages(turns []Turn) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		content := collapsePlaceholders(t.Text)
		switch t.Role {
		case store.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(content))
		}
	}
	return msgs
}
