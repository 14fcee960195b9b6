package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/store"
)

// Provenance names the history slot an image binding came from. The four
// slots and their priority order are fixed: current user turn first, then
// the most recent assistant turn, the previous user turn, and the second
// most recent assistant turn.
type Provenance string

const (
	FromCurrentUser     Provenance = "current_user"
	FromLastAssistant   Provenance = "last_assistant"
	FromPreviousUser    Provenance = "previous_user"
	FromSecondAssistant Provenance = "second_assistant"
)

var tagPrefix = map[Provenance]string{
	FromCurrentUser:     "user_image",
	FromLastAssistant:   "last_image",
	FromPreviousUser:    "prev_user_image",
	FromSecondAssistant: "prior_image",
}

// Binding maps a symbolic tag to one image URL for compact reference inside
// a prompt. Bindings are rebuilt per reply and never persisted.
type Binding struct {
	Tag  string
	URL  string
	From Provenance
}

// BindImages assigns tags to the images of the four priority slots of an
// assembled context (the last turn being the current user turn). A URL
// seen in an earlier-priority slot is not re-tagged by a later one.
func BindImages(turns []Turn) []Binding {
	if len(turns) == 0 {
		return nil
	}

	currentIdx := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == store.RoleUser {
			currentIdx = i
			break
		}
	}

	var lastAssistant, secondAssistant, prevUser *Turn
	assistantSeen := 0
	for i := len(turns) - 1; i >= 0; i-- {
		t := &turns[i]
		switch t.Role {
		case store.RoleAssistant:
			assistantSeen++
			if assistantSeen == 1 {
				lastAssistant = t
			} else if assistantSeen == 2 {
				secondAssistant = t
			}
		case store.RoleUser:
			if currentIdx >= 0 && i < currentIdx && prevUser == nil {
				prevUser = t
			}
		}
	}

	type slot struct {
		turn *Turn
		from Provenance
	}
	ordered := []slot{}
	if currentIdx >= 0 {
		ordered = append(ordered, slot{&turns[currentIdx], FromCurrentUser})
	}
	ordered = append(ordered,
		slot{lastAssistant, FromLastAssistant},
		slot{prevUser, FromPreviousUser},
		slot{secondAssistant, FromSecondAssistant},
	)

	seen := make(map[string]bool)
	var bindings []Binding
	for _, s := range ordered {
		if s.turn == nil {
			continue
		}
		n := 0
		for _, url := range s.turn.Images {
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			n++
			bindings = append(bindings, Binding{
				Tag:  fmt.Sprintf("%s_%d", tagPrefix[s.from], n),
				URL:  url,
				From: s.from,
			})
		}
	}
	return bindings
}

var placeholderPattern = regexp.MustCompile(`\[IMG_(\d+)\]`)

// collapsePlaceholders rewrites extraction placeholders to their neutral
// form for prompts that cannot carry image tags.
func collapsePlaceholders(text string) string {
	return placeholderPattern.ReplaceAllString(text, base64Placeholder)
}

// renderTurn rewrites a turn's extraction placeholders to the bound tags,
// falling back to the neutral placeholder for unbound images.
func renderTurn(t Turn, tagByURL map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(t.Text, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		var i int
		fmt.Sscanf(sub[1], "%d", &i)
		if i < len(t.Images) {
			if tag, ok := tagByURL[t.Images[i]]; ok {
				return "[" + tag + "]"
			}
		}
		return base64Placeholder
	})
}

// ImageMessages renders an assembled context for an image-capable call:
// history turns become text messages with tag references, and the final
// user message carries the bound images as labeled multimodal parts.
func ImageMessages(turns []Turn, bindings []Binding) []*schema.Message {
	tagByURL := make(map[string]string, len(bindings))
	for _, b := range bindings {
		tagByURL[b.URL] = b.Tag
	}

	msgs := make([]*schema.Message, 0, len(turns))
	for i, t := range turns {
		text := renderTurn(t, tagByURL)
		last := i == len(turns)-1

		if last && len(bindings) > 0 {
			parts := []schema.ChatMessagePart{{
				Type: schema.ChatMessagePartTypeText,
				Text: text,
			}}
			for _, b := range bindings {
				parts = append(parts,
					schema.ChatMessagePart{
						Type: schema.ChatMessagePartTypeText,
						Text: fmt.Sprintf("[%s]:", b.Tag),
					},
					schema.ChatMessagePart{
						Type:     schema.ChatMessagePartTypeImageURL,
						ImageURL: &schema.ChatMessageImageURL{URL: b.URL},
					})
			}
			msgs = append(msgs, &schema.Message{Role: schema.User, MultiContent: parts})
			continue
		}

		switch t.Role {
		case store.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(text, nil))
		default:
			msgs = append(msgs, schema.UserMessage(text))
		}
	}
	return msgs
}

// Manifest renders a short, human-readable listing of the bindings for
// logging and prompt headers.
func Manifest(bindings []Binding) string {
	if len(bindings) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, b := range bindings {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.Tag)
		sb.WriteString(" (")
		sb.WriteString(string(b.From))
		sb.WriteString(")")
	}
	return sb.String()
}
