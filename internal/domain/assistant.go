// Package domain contains core domain types for the UserManPro application.
package domain

import (
	"strings"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleSystem is the assistant's system instruction.
	RoleSystem Role = "system"
	// RoleUser is a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant is a reply produced by the model.
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a chat transcript. Turns are immutable once
// appended; history is only ever appended to or cleared as a whole.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Assistant is a named persona defined by a system prompt plus its own
// chat transcript. ID is assigned by the store at creation and never changes;
// Name and Prompt are fixed after creation.
type Assistant struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Prompt      string    `json:"prompt"`
	ChatHistory []Turn    `json:"chat_history"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns a deep copy so callers can read assistant state without
// aliasing the registry's cached history slice.
func (a *Assistant) Clone() *Assistant {
	c := *a
	c.ChatHistory = append([]Turn(nil), a.ChatHistory...)
	return &c
}

// ValidInput reports whether a user-supplied field is non-empty after trimming.
func ValidInput(s string) bool {
	return strings.TrimSpace(s) != ""
}
