package store

import (
	"context"
	"errors"
	"time"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the lifecycle state of a persisted message.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusDeleted Status = "deleted"
)

// ErrMessageNotFound is returned when a message id resolves to nothing.
// Context assembly treats it as the end of the history chain.
var ErrMessageNotFound = errors.New("message not found")

// Message is one persisted conversation record. ParentID links each message
// to the preceding one, forming the backward chain the context assembler
// walks. Prompt records may carry uploaded image paths.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	RoomID    int64     `json:"roomId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Images    []string  `json:"images,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	Status    Status    `json:"status"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the conversation persistence collaborator. The orchestration
// core reads the message chain and records outcomes; ownership of the data
// lives with the HTTP/persistence layer outside this module.
type Store interface {
	// GetMessageByID resolves one message, returning ErrMessageNotFound
	// when the id is unknown.
	GetMessageByID(ctx context.Context, id string) (*Message, error)

	// SaveMessage upserts a message record.
	SaveMessage(ctx context.Context, msg *Message) error

	// UpdateRoomModel records the model most recently used in a room.
	UpdateRoomModel(ctx context.Context, userID string, roomID int64, model string) error
}
