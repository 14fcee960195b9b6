package conversation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1VeniVediVeci1/chatgpt-web-sub000/internal/store"
)

type fakeStore struct {
	msgs map[string]*store.Message
}

func newFakeStore(msgs ...*store.Message) *fakeStore {
	f := &fakeStore{msgs: make(map[string]*store.Message)}
	for _, m := range msgs {
		f.msgs[m.ID] = m
	}
	return f
}

func (f *fakeStore) GetMessageByID(ctx context.Context, id string) (*store.Message, error) {
	if m, ok := f.msgs[id]; ok {
		return m, nil
	}
	return nil, store.ErrMessageNotFound
}

func (f *fakeStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	f.msgs[msg.ID] = msg
	return nil
}

func (f *fakeStore) UpdateRoomModel(ctx context.Context, userID string, roomID int64, model string) error {
	return nil
}

func msg(id, parentID string, role store.Role, content string) *store.Message {
	return &store.Message{
		ID:       id,
		Role:     role,
		Content:  content,
		ParentID: parentID,
		Status:   store.StatusNormal,
	}
}

func TestAssembleShortChain(t *testing.T) {
	st := newFakeStore(
		msg("A", "", store.RoleUser, "hi"),
		msg("B", "A", store.RoleAssistant, "hello"),
		msg("C", "B", store.RoleUser, "![img](data:image/png;base64,AAAA)"),
	)
	a := NewAssembler(st, nil)

	turns, err := a.Assemble(context.Background(), "B", 10, false)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, store.RoleUser, turns[0].Role)
	assert.Equal(t, "hi", turns[0].Text)
	assert.Equal(t, store.RoleAssistant, turns[1].Role)
	assert.Equal(t, "hello", turns[1].Text)
}

func TestAssembleRespectsMaxCount(t *testing.T) {
	msgs := []*store.Message{msg("m0", "", store.RoleUser, "m0")}
	for i := 1; i < 20; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		msgs = append(msgs, msg(
			fmt.Sprintf("m%d", i),
			fmt.Sprintf("m%d", i-1),
			role,
			fmt.Sprintf("m%d", i),
		))
	}
	a := NewAssembler(newFakeStore(msgs...), nil)

	turns, err := a.Assemble(context.Background(), "m19", 5, false)
	require.NoError(t, err)
	require.Len(t, turns, 5)
	// Oldest first, ending at the start message.
	assert.Equal(t, "m15", turns[0].Text)
	assert.Equal(t, "m19", turns[4].Text)
}

func TestAssembleSkipsDeletedMessages(t *testing.T) {
	deleted := msg("B", "A", store.RoleAssistant, "gone")
	deleted.Status = store.StatusDeleted
	st := newFakeStore(
		msg("A", "", store.RoleUser, "hi"),
		deleted,
		msg("C", "B", store.RoleUser, "next"),
	)
	a := NewAssembler(st, nil)

	turns, err := a.Assemble(context.Background(), "C", 10, false)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].Text)
	assert.Equal(t, "next", turns[1].Text)
}

func TestAssembleUnresolvableIDEndsWalk(t *testing.T) {
	st := newFakeStore(msg("C", "missing", store.RoleUser, "tail"))
	a := NewAssembler(st, nil)

	turns, err := a.Assemble(context.Background(), "C", 10, false)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "tail", turns[0].Text)
}

func TestAssembleEmptyStartID(t *testing.T) {
	a := NewAssembler(newFakeStore(), nil)
	turns, err := a.Assemble(context.Background(), "", 10, false)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAssembleExtractsImagesWhenRequested(t *testing.T) {
	st := newFakeStore(
		msg("A", "", store.RoleUser, "look ![x](https://x/1.png)"),
	)
	a := NewAssembler(st, nil)

	turns, err := a.Assemble(context.Background(), "A", 10, true)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "look [IMG_0]", turns[0].Text)
	assert.Equal(t, []string{"https://x/1.png"}, turns[0].Images)
}

func TestAssembleNeutralizesBase64WithoutImages(t *testing.T) {
	st := newFakeStore(
		msg("A", "", store.RoleUser, "inline data:image/png;base64,AAAA end"),
	)
	a := NewAssembler(st, nil)

	turns, err := a.Assemble(context.Background(), "A", 10, false)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "inline [image] end", turns[0].Text)
	assert.Empty(t, turns[0].Images)
}

func TestMessagesCollapsesPlaceholders(t *testing.T) {
	turns := []Turn{
		{Role: store.RoleUser, Text: "see [IMG_0] here", Images: []string{"https://x/1.png"}},
	}
	msgs := Messages(turns)
	require.Len(t, msgs, 1)
	assert.Equal(t, "see [image] here", msgs[0].Content)
}
