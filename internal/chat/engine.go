// Package chat implements the conversation engine: context assembly,
// completion, normalization, and transcript persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/usermanpro/server/internal/domain"
	"github.com/usermanpro/server/internal/registry"
	"github.com/usermanpro/server/internal/toolcall"
)

var (
	// ErrNoSelection is returned when no assistant is currently selected.
	ErrNoSelection = errors.New("no assistant selected")
	// ErrEmptyMessage is returned for empty or whitespace-only input.
	ErrEmptyMessage = errors.New("message is empty")
)

// Completer produces the next reply for an ordered conversation context.
// Satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, turns []domain.Turn) (string, error)
}

// Engine drives a conversation with the currently selected assistant.
type Engine struct {
	reg       *registry.Registry
	completer Completer
	logger    *slog.Logger
}

// NewEngine creates a conversation engine.
func NewEngine(reg *registry.Registry, completer Completer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{reg: reg, completer: completer, logger: logger}
}

// SendMessage sends userText to the selected assistant and returns the
// normalized reply turn. The context sent to the model is the assistant's
// system prompt, its full history, then the new user turn. If the completion
// fails, no turns are appended and nothing is persisted.
func (e *Engine) SendMessage(ctx context.Context, userText string) (domain.Turn, error) {
	if !domain.ValidInput(userText) {
		return domain.Turn{}, ErrEmptyMessage
	}

	assistant, ok := e.reg.Current()
	if !ok {
		return domain.Turn{}, ErrNoSelection
	}

	turns := make([]domain.Turn, 0, len(assistant.ChatHistory)+2)
	turns = append(turns, domain.Turn{Role: domain.RoleSystem, Content: assistant.Prompt})
	turns = append(turns, assistant.ChatHistory...)
	userTurn := domain.Turn{Role: domain.RoleUser, Content: userText}
	turns = append(turns, userTurn)

	reply, err := e.completer.Complete(ctx, turns)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("complete chat: %w", err)
	}

	assistantTurn := domain.Turn{Role: domain.RoleAssistant, Content: toolcall.Normalize(reply)}

	// User turn first, then the reply, appended and persisted together.
	if err := e.reg.AppendTurns(ctx, assistant.ID, userTurn, assistantTurn); err != nil {
		return domain.Turn{}, err
	}

	e.logger.Info("chat turn completed",
		"assistant_id", assistant.ID,
		"history_len", len(assistant.ChatHistory)+2)

	return assistantTurn, nil
}

// ResetHistory clears the selected assistant's transcript in both cache
// and store.
func (e *Engine) ResetHistory(ctx context.Context) error {
	assistant, ok := e.reg.Current()
	if !ok {
		return ErrNoSelection
	}
	return e.reg.ClearHistory(ctx, assistant.ID)
}
