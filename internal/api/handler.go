// Package api provides HTTP handlers for the UserManPro API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/usermanpro/server/internal/chat"
	"github.com/usermanpro/server/internal/domain"
	"github.com/usermanpro/server/internal/llm"
	"github.com/usermanpro/server/internal/registry"
	"github.com/usermanpro/server/internal/store"
)

// maxRequestBodySize caps request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Handler exposes the registry and conversation engine over HTTP.
type Handler struct {
	reg    *registry.Registry
	engine *chat.Engine
	repo   store.Repository
	logger *slog.Logger
}

// NewHandler creates a Handler with its dependencies.
func NewHandler(reg *registry.Registry, engine *chat.Engine, repo store.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{reg: reg, engine: engine, repo: repo, logger: logger}
}

// RegisterRoutes mounts all API routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/assistants", func(r chi.Router) {
			r.Post("/", h.createAssistant)
			r.Get("/", h.listAssistants)
			r.Get("/current", h.currentAssistant)
			r.Post("/generate-prompt", h.generatePrompt)
			r.Post("/{id}/select", h.selectAssistant)
			r.Delete("/{id}", h.deleteAssistant)
		})
		r.Post("/chat", h.sendMessage)
		r.Post("/chat/reset", h.resetChat)
		r.Get("/stats/created-per-day", h.createdPerDay)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			Error(w, http.StatusBadRequest, "request body is empty")
		} else {
			Error(w, http.StatusBadRequest, "invalid request body")
		}
		return false
	}
	return true
}

type createAssistantRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

func (h *Handler) createAssistant(w http.ResponseWriter, r *http.Request) {
	var req createAssistantRequest
	if !h.decode(w, r, &req) {
		return
	}

	_, err := h.reg.Create(r.Context(), req.Name, req.Prompt)
	if err != nil {
		var verr *registry.ValidationError
		if errors.As(err, &verr) {
			JSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		h.logger.Error("create assistant failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create assistant")
		return
	}

	a, _ := h.reg.Current()
	JSON(w, http.StatusCreated, a)
}

type listAssistantsResponse struct {
	Assistants []*domain.Assistant `json:"assistants"`
	SelectedID int64               `json:"selected_id,omitempty"`
}

func (h *Handler) listAssistants(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, listAssistantsResponse{
		Assistants: h.reg.List(),
		SelectedID: h.reg.SelectedID(),
	})
}

func (h *Handler) currentAssistant(w http.ResponseWriter, r *http.Request) {
	a, ok := h.reg.Current()
	if !ok {
		Error(w, http.StatusNotFound, "no assistant selected")
		return
	}
	JSON(w, http.StatusOK, a)
}

func (h *Handler) selectAssistant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assistantID(w, r)
	if !ok {
		return
	}
	// Unknown ids are a registry no-op, mirrored here as success.
	h.reg.Select(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteAssistant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assistantID(w, r)
	if !ok {
		return
	}
	if err := h.reg.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete assistant failed", "assistant_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete assistant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) generatePrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := h.reg.GenerateDraftPrompt(r.Context())
	if err != nil {
		var rerr *llm.RemoteServiceError
		if errors.As(err, &rerr) {
			Error(w, http.StatusBadGateway, "prompt generation failed, try again later")
			return
		}
		h.logger.Error("generate prompt failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to generate prompt")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"prompt": prompt})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	turn, err := h.engine.SendMessage(r.Context(), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			Error(w, http.StatusBadRequest, "message must not be empty")
		case errors.Is(err, chat.ErrNoSelection):
			Error(w, http.StatusConflict, "create or select an assistant first")
		default:
			var rerr *llm.RemoteServiceError
			if errors.As(err, &rerr) {
				Error(w, http.StatusBadGateway, "assistant is unavailable, try again later")
				return
			}
			h.logger.Error("send message failed", "error", err)
			Error(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	JSON(w, http.StatusOK, map[string]domain.Turn{"reply": turn})
}

func (h *Handler) resetChat(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResetHistory(r.Context()); err != nil {
		if errors.Is(err, chat.ErrNoSelection) {
			Error(w, http.StatusConflict, "create or select an assistant first")
			return
		}
		h.logger.Error("reset chat failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to reset chat history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createdPerDay(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repo.CountCreatedPerDay(r.Context())
	if err != nil {
		h.logger.Error("created-per-day query failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	JSON(w, http.StatusOK, counts)
}

func (h *Handler) assistantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "invalid assistant id")
		return 0, false
	}
	return id, true
}
