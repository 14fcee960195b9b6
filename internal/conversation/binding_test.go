package conversation

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/store"
)

func imageHistory() []Turn {
	return []Turn{
		{Role: store.RoleUser, Text: "[IMG_0]", Images: []string{"https://x/old-user.png"}},
		{Role: store.RoleAssistant, Text: "[IMG_0]", Images: []string{"https://x/old-assistant.png"}},
		{Role: store.RoleUser, Text: "[IMG_0]", Images: []string{"https://x/prev-user.png"}},
		{Role: store.RoleAssistant, Text: "[IMG_0]", Images: []string{"https://x/last-assistant.png"}},
		{Role: store.RoleUser, Text: "edit [IMG_0]", Images: []string{"https://x/current.png"}},
	}
}

func TestBindImagesPriorityOrder(t *testing.T) {
	bindings := BindImages(imageHistory())
	require.Len(t, bindings, 4)

	assert.Equal(t, "user_image_1", bindings[0].Tag)
	assert.Equal(t, "https://x/current.png", bindings[0].URL)
	assert.Equal(t, FromCurrentUser, bindings[0].From)

	assert.Equal(t, "last_image_1", bindings[1].Tag)
	assert.Equal(t, "https://x/last-assistant.png", bindings[1].URL)

	assert.Equal(t, "prev_user_image_1", bindings[2].Tag)
	assert.Equal(t, "https://x/prev-user.png", bindings[2].URL)

	assert.Equal(t, "prior_image_1", bindings[3].Tag)
	assert.Equal(t, "https://x/old-assistant.png", bindings[3].URL)
}

func TestBindImagesFirstSeenWins(t *testing.T) {
	turns := []Turn{
		{Role: store.RoleAssistant, Text: "[IMG_0]", Images: []string{"https://x/shared.png"}},
		{Role: store.RoleUser, Text: "[IMG_0]", Images: []string{"https://x/shared.png"}},
	}
	bindings := BindImages(turns)
	require.Len(t, bindings, 1)
	// The current user turn outranks the assistant turn, so the shared URL
	// is claimed there and never re-tagged.
	assert.Equal(t, FromCurrentUser, bindings[0].From)
	assert.Equal(t, "user_image_1", bindings[0].Tag)
}

func TestBindImagesDeterministicAndIdempotent(t *testing.T) {
	first := BindImages(imageHistory())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BindImages(imageHistory()))
	}
}

func TestBindImagesMultiplePerSlot(t *testing.T) {
	turns := []Turn{
		{Role: store.RoleUser, Text: "[IMG_0] [IMG_1]", Images: []string{"https://x/a.png", "https://x/b.png"}},
	}
	bindings := BindImages(turns)
	require.Len(t, bindings, 2)
	assert.Equal(t, "user_image_1", bindings[0].Tag)
	assert.Equal(t, "user_image_2", bindings[1].Tag)
}

func TestBindImagesNoImages(t *testing.T) {
	turns := []Turn{{Role: store.RoleUser, Text: "just text"}}
	assert.Empty(t, BindImages(turns))
	assert.Empty(t, BindImages(nil))
}

func TestImageMessagesShape(t *testing.T) {
	turns := imageHistory()
	bindings := BindImages(turns)
	msgs := ImageMessages(turns, bindings)
	require.Len(t, msgs, 5)

	// History turns are plain text with tag references.
	assert.Equal(t, "[last_image_1]", msgs[3].Content)
	assert.Empty(t, msgs[3].MultiContent)

	// The final user message carries the bound images as labeled parts:
	// the text, then a label part and an image part per binding.
	final := msgs[4]
	assert.Equal(t, schema.User, final.Role)
	require.Len(t, final.MultiContent, 1+2*len(bindings))
	assert.Equal(t, "edit [user_image_1]", final.MultiContent[0].Text)
	assert.Equal(t, "[user_image_1]:", final.MultiContent[1].Text)
	require.NotNil(t, final.MultiContent[2].ImageURL)
	assert.Equal(t, "https://x/current.png", final.MultiContent[2].ImageURL.URL)
}

func TestRenderTurnFallsBackForUnboundImages(t *testing.T) {
	turns := []Turn{
		{Role: store.RoleUser, Text: "old [IMG_0]", Images: []string{"https://x/untagged.png"}},
	}
	msgs := ImageMessages(turns, nil)
	require.Len(t, msgs, 1)
	assert.Equal(t, "old [image]", msgs[0].Content)
}

func TestManifest(t *testing.T) {
	bindings := []Binding{
		{Tag: "user_image_1", URL: "https://x/a.png", From: FromCurrentUser},
		{Tag: "last_image_1", URL: "https://x/b.png", From: FromLastAssistant},
	}
	assert.Equal(t, "user_image_1 (current_user), last_image_1 (last_assistant)", Manifest(bindings))
	assert.Empty(t, Manifest(nil))
}
