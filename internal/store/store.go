// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/usermanpro/server/internal/domain"
)

// ErrNotFound is returned when an operation references an assistant id that
// does not exist in the database.
var ErrNotFound = errors.New("assistant not found")

// Repository defines the interface for persisting assistants and their
// chat transcripts. Every mutating call commits durably before returning;
// callers rely on read-after-write consistency within the process.
type Repository interface {
	// CreateAssistant inserts a new assistant with an empty chat history
	// and the current timestamp, returning its generated id. Names are
	// not unique; duplicates are allowed.
	CreateAssistant(ctx context.Context, name, prompt string) (int64, error)

	// ListAssistants returns a full snapshot of all assistants keyed by id.
	// Used once at startup to seed the registry cache.
	ListAssistants(ctx context.Context) (map[int64]*domain.Assistant, error)

	// ReplaceChatHistory overwrites the stored transcript for an assistant.
	// Returns ErrNotFound if the id does not exist.
	ReplaceChatHistory(ctx context.Context, id int64, history []domain.Turn) error

	// DeleteAssistant removes an assistant. Idempotent; deleting an absent
	// id is not an error.
	DeleteAssistant(ctx context.Context, id int64) error

	// CountCreatedPerDay returns the number of assistants created per
	// calendar day, keyed by "YYYY-MM-DD".
	CountCreatedPerDay(ctx context.Context) (map[string]int, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
