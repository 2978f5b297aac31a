package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/usermanpro/server/internal/chat"
	"github.com/usermanpro/server/internal/domain"
	"github.com/usermanpro/server/internal/llm"
	"github.com/usermanpro/server/internal/registry"
	"github.com/usermanpro/server/internal/store"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s *stubCompleter) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type stubPrompts struct {
	prompt string
	err    error
}

func (s *stubPrompts) GenerateSystemPrompt(ctx context.Context) (string, error) {
	return s.prompt, s.err
}

func newTestServer(t *testing.T, completer chat.Completer, prompts registry.PromptGenerator) (*httptest.Server, *registry.Registry) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	if prompts == nil {
		prompts = &stubPrompts{prompt: "You are a pirate."}
	}
	reg := registry.New(repo, prompts, nil)
	if err := reg.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	engine := chat.NewEngine(reg, completer, nil)
	handler := NewHandler(reg, engine, repo, nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func request(t *testing.T, srv *httptest.Server, method, path, body string, out interface{}) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func TestCreateAssistantEndpoint(t *testing.T) {
	t.Parallel()

	srv, reg := newTestServer(t, &stubCompleter{reply: "ok"}, nil)

	var created domain.Assistant
	resp := request(t, srv, http.MethodPost, "/api/assistants",
		`{"name":"Helper","prompt":"Be terse."}`, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if created.ID == 0 || created.Name != "Helper" {
		t.Errorf("unexpected created assistant: %+v", created)
	}
	if reg.SelectedID() != created.ID {
		t.Errorf("expected new assistant selected, got %d", reg.SelectedID())
	}
}

func TestCreateAssistantValidationFeedback(t *testing.T) {
	t.Parallel()

	srv, reg := newTestServer(t, &stubCompleter{reply: "ok"}, nil)

	var body map[string]string
	resp := request(t, srv, http.MethodPost, "/api/assistants",
		`{"name":"  ","prompt":"Be terse."}`, &body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body["field"] != "name" {
		t.Errorf("expected field-level feedback for name, got %v", body)
	}
	if reg.SelectedID() != 0 {
		t.Errorf("expected no selection after rejected create, got %d", reg.SelectedID())
	}
}

func TestChatEndpointEndToEnd(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubCompleter{reply: "Hello there."}, nil)

	request(t, srv, http.MethodPost, "/api/assistants",
		`{"name":"Helper","prompt":"Be terse."}`, nil)

	var chatResp map[string]domain.Turn
	resp := request(t, srv, http.MethodPost, "/api/chat", `{"message":"Hi"}`, &chatResp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	reply := chatResp["reply"]
	if reply.Role != domain.RoleAssistant || reply.Content != "Hello there." {
		t.Errorf("unexpected reply: %+v", reply)
	}

	var current domain.Assistant
	request(t, srv, http.MethodGet, "/api/assistants/current", "", &current)
	if len(current.ChatHistory) != 2 {
		t.Fatalf("expected 2 turns in history, got %d", len(current.ChatHistory))
	}
	if current.ChatHistory[0].Role != domain.RoleUser || current.ChatHistory[0].Content != "Hi" {
		t.Errorf("unexpected first turn: %+v", current.ChatHistory[0])
	}
}

func TestChatEndpointWithoutSelection(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubCompleter{reply: "ok"}, nil)

	resp := request(t, srv, http.MethodPost, "/api/chat", `{"message":"Hi"}`, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestChatEndpointRemoteFailure(t *testing.T) {
	t.Parallel()

	completer := &stubCompleter{err: &llm.RemoteServiceError{Attempts: 3, Err: fmt.Errorf("down")}}
	srv, reg := newTestServer(t, completer, nil)

	request(t, srv, http.MethodPost, "/api/assistants",
		`{"name":"Helper","prompt":"Be terse."}`, nil)

	resp := request(t, srv, http.MethodPost, "/api/chat", `{"message":"Hi"}`, nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	a, ok := reg.Current()
	if !ok {
		t.Fatal("expected current assistant")
	}
	if len(a.ChatHistory) != 0 {
		t.Errorf("expected history untouched after failure, got %d turns", len(a.ChatHistory))
	}
}

func TestSelectAndDeleteEndpoints(t *testing.T) {
	t.Parallel()

	srv, reg := newTestServer(t, &stubCompleter{reply: "ok"}, nil)

	var first domain.Assistant
	request(t, srv, http.MethodPost, "/api/assistants",
		`{"name":"Helper","prompt":"Be terse."}`, &first)
	var second domain.Assistant
	request(t, srv, http.MethodPost, "/api/assistants",
		`{"name":"Muse","prompt":"Be poetic."}`, &second)

	resp := request(t, srv, http.MethodPost,
		fmt.Sprintf("/api/assistants/%d/select", first.ID), "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on select, got %d", resp.StatusCode)
	}
	if reg.SelectedID() != first.ID {
		t.Errorf("expected selection %d, got %d", first.ID, reg.SelectedID())
	}

	resp = request(t, srv, http.MethodDelete,
		fmt.Sprintf("/api/assistants/%d", first.ID), "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", resp.StatusCode)
	}
	if reg.SelectedID() != 0 {
		t.Errorf("expected selection cleared, got %d", reg.SelectedID())
	}

	// Deleting again is still a success.
	resp = request(t, srv, http.MethodDelete,
		fmt.Sprintf("/api/assistants/%d", first.ID), "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on repeat delete, got %d", resp.StatusCode)
	}

	var list listAssistantsResponse
	request(t, srv, http.MethodGet, "/api/assistants", "", &list)
	if len(list.Assistants) != 1 || list.Assistants[0].ID != second.ID {
		t.Errorf("unexpected remaining assistants: %+v", list.Assistants)
	}
}

func TestGeneratePromptEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubCompleter{reply: "ok"}, &stubPrompts{prompt: "You are a pirate."})

	var body map[string]string
	resp := request(t, srv, http.MethodPost, "/api/assistants/generate-prompt", "", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["prompt"] != "You are a pirate." {
		t.Errorf("unexpected prompt: %v", body)
	}
}

func TestGeneratePromptEndpointRemoteFailure(t *testing.T) {
	t.Parallel()

	prompts := &stubPrompts{err: &llm.RemoteServiceError{Attempts: 3, Err: fmt.Errorf("down")}}
	srv, _ := newTestServer(t, &stubCompleter{reply: "ok"}, prompts)

	resp := request(t, srv, http.MethodPost, "/api/assistants/generate-prompt", "", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestResetChatEndpoint(t *testing.T) {
	t.Parallel()

	srv, reg := newTestServer(t, &stubCompleter{reply: "Hello."}, nil)

	request(t, srv, http.MethodPost, "/api/assistants",
		`{"name":"Helper","prompt":"Be terse."}`, nil)
	request(t, srv, http.MethodPost, "/api/chat", `{"message":"Hi"}`, nil)

	resp := request(t, srv, http.MethodPost, "/api/chat/reset", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	a, _ := reg.Current()
	if len(a.ChatHistory) != 0 {
		t.Errorf("expected cleared history, got %d turns", len(a.ChatHistory))
	}
}

func TestCreatedPerDayEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubCompleter{reply: "ok"}, nil)

	request(t, srv, http.MethodPost, "/api/assistants",
		`{"name":"Helper","prompt":"Be terse."}`, nil)
	request(t, srv, http.MethodPost, "/api/assistants",
		`{"name":"Muse","prompt":"Be poetic."}`, nil)

	var counts map[string]int
	resp := request(t, srv, http.MethodGet, "/api/stats/created-per-day", "", &counts)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total != 2 {
		t.Errorf("expected 2 assistants counted, got %d (%v)", total, counts)
	}
}
