package store

import (
	"context"
	"errors"
	"time"
)

// Message roles mirror the upstream chat completion roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrSessionNotFound = errors.New("store: session not found")

// Message is a single role-tagged conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationStore keeps ordered per-session message histories. Histories
// are append-only for the lifetime of a session; Delete removes the whole
// session.
type ConversationStore interface {
	// Create allocates a new session and returns its identifier.
	Create(ctx context.Context) (string, error)
	// Append adds messages to an existing session, preserving order.
	Append(ctx context.Context, sessionID string, messages ...Message) error
	// History returns the session's messages oldest-first.
	History(ctx context.Context, sessionID string) ([]Message, error)
	// Delete drops the session entirely.
	Delete(ctx context.Context, sessionID string) error
}
