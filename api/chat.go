package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/planora/planora/internal/assistant"
	"github.com/planora/planora/internal/chatlog"
	"github.com/planora/planora/internal/log"
)

// AssistantService handles conversational requests.
type AssistantService interface {
	Handle(ctx context.Context, userID, message string, mode assistant.Mode) (string, error)
	ComposeGreeting(ctx context.Context, userID string) (string, error)
}

// ChatReader provides read access to stored transcripts.
type ChatReader interface {
	Get(ctx context.Context, userID string) (*chatlog.Record, error)
}

// ChatHandler serves the chat, greeting, and history endpoints.
type ChatHandler struct {
	assistant AssistantService
	chats     ChatReader
	logger    log.Logger
}

func NewChatHandler(assistant AssistantService, chats ChatReader, logger log.Logger) *ChatHandler {
	return &ChatHandler{assistant: assistant, chats: chats, logger: logger}
}

func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("GET /api/chat/initial-message", h.handleInitialMessage)
	mux.HandleFunc("GET /api/chat/history", h.handleHistory)
}

type chatRequest struct {
	Message string `json:"message"`
	Mode    string `json:"mode"`
}

type chatResponse struct {
	Replay string `json:"replay"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	mode, err := assistant.ParseMode(req.Mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	reply, err := h.assistant.Handle(r.Context(), UserIDFrom(r.Context()), req.Message, mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Replay: reply})
}

type greetingResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *ChatHandler) handleInitialMessage(w http.ResponseWriter, r *http.Request) {
	greeting, err := h.assistant.ComposeGreeting(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, greetingResponse{Status: "success", Message: greeting})
}

func (h *ChatHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	record, err := h.chats.Get(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}
