// Package registry owns the in-memory assistant cache and the current
// selection, keeping both synchronized with the persistence store.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/usermanpro/server/internal/domain"
	"github.com/usermanpro/server/internal/store"
)

// ValidationError reports a user-supplied field that failed validation.
// It is returned as a value so callers can render field-level feedback.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PromptGenerator drafts a system prompt for a new assistant.
type PromptGenerator interface {
	GenerateSystemPrompt(ctx context.Context) (string, error)
}

// Registry caches all assistants keyed by id and tracks the currently
// selected one. Every mutation writes through to the store before the cache
// changes, so cache and store never diverge past a single call.
type Registry struct {
	repo    store.Repository
	prompts PromptGenerator
	logger  *slog.Logger

	mu          sync.RWMutex
	assistants  map[int64]*domain.Assistant
	selected    int64 // 0 = no selection
	initialized bool
}

// New creates a Registry. Call Initialize before use.
func New(repo store.Repository, prompts PromptGenerator, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		repo:       repo,
		prompts:    prompts,
		logger:     logger,
		assistants: make(map[int64]*domain.Assistant),
	}
}

// Initialize seeds the cache from the store. Idempotent; only the first call
// per process hits the database.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	assistants, err := r.repo.ListAssistants(ctx)
	if err != nil {
		return fmt.Errorf("load assistants: %w", err)
	}

	r.assistants = assistants
	r.initialized = true
	r.logger.Info("assistant registry initialized", "count", len(assistants))
	return nil
}

// Create validates the fields, persists a new assistant, caches it with an
// empty history, and makes it the current selection. Validation failures are
// returned as *ValidationError with nothing mutated.
func (r *Registry) Create(ctx context.Context, name, prompt string) (int64, error) {
	if !domain.ValidInput(name) {
		return 0, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !domain.ValidInput(prompt) {
		return 0, &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.repo.CreateAssistant(ctx, name, prompt)
	if err != nil {
		return 0, fmt.Errorf("create assistant: %w", err)
	}

	r.assistants[id] = &domain.Assistant{
		ID:          id,
		Name:        name,
		Prompt:      prompt,
		ChatHistory: []domain.Turn{},
		CreatedAt:   time.Now(),
	}
	r.selected = id

	r.logger.Info("assistant created", "assistant_id", id, "name", name)
	return id, nil
}

// Select sets the selection pointer. Unknown ids are ignored.
func (r *Registry) Select(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assistants[id]; !ok {
		return
	}
	r.selected = id
}

// Delete removes an assistant from the store and the cache, clearing the
// selection if it pointed at the deleted id. Idempotent.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.DeleteAssistant(ctx, id); err != nil {
		return fmt.Errorf("delete assistant: %w", err)
	}

	delete(r.assistants, id)
	if r.selected == id {
		r.selected = 0
	}

	r.logger.Info("assistant deleted", "assistant_id", id)
	return nil
}

// GenerateDraftPrompt delegates to the completion client and propagates its
// errors unchanged.
func (r *Registry) GenerateDraftPrompt(ctx context.Context) (string, error) {
	return r.prompts.GenerateSystemPrompt(ctx)
}

// Current returns a copy of the selected assistant, or false when nothing
// is selected.
func (r *Registry) Current() (*domain.Assistant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assistants[r.selected]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// SelectedID returns the current selection pointer (0 = none).
func (r *Registry) SelectedID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// List returns copies of all assistants ordered by id.
func (r *Registry) List() []*domain.Assistant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Assistant, 0, len(r.assistants))
	for _, a := range r.assistants {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AppendTurns appends turns to an assistant's history and persists the full
// transcript before returning. On a store failure the cached history is
// rolled back, leaving the conversation exactly as it was.
func (r *Registry) AppendTurns(ctx context.Context, id int64, turns ...domain.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assistants[id]
	if !ok {
		return fmt.Errorf("append turns: %w", store.ErrNotFound)
	}

	prev := len(a.ChatHistory)
	a.ChatHistory = append(a.ChatHistory, turns...)

	if err := r.repo.ReplaceChatHistory(ctx, id, a.ChatHistory); err != nil {
		a.ChatHistory = a.ChatHistory[:prev]
		return fmt.Errorf("persist chat history: %w", err)
	}
	return nil
}

// ClearHistory resets an assistant's transcript to empty in both cache
// and store.
func (r *Registry) ClearHistory(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assistants[id]
	if !ok {
		return fmt.Errorf("clear history: %w", store.ErrNotFound)
	}

	if err := r.repo.ReplaceChatHistory(ctx, id, []domain.Turn{}); err != nil {
		return fmt.Errorf("persist cleared history: %w", err)
	}

	a.ChatHistory = []domain.Turn{}
	return nil
}
