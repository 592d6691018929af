package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/planora/planora/internal/event"
	"github.com/planora/planora/internal/log"
)

// EventService provides event persistence.
type EventService interface {
	Create(ctx context.Context, e *event.Event) (*event.Event, error)
	List(ctx context.Context, userID string) ([]*event.Event, error)
}

// EventHandler serves the event endpoints.
type EventHandler struct {
	events EventService
	logger log.Logger
}

func NewEventHandler(events EventService, logger log.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

func (h *EventHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/events", h.handleCreate)
	mux.HandleFunc("GET /api/events", h.handleList)
}

type createEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

func (h *EventHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	created, err := h.events.Create(r.Context(), &event.Event{
		UserID:      UserIDFrom(r.Context()),
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *EventHandler) handleList(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if events == nil {
		events = []*event.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
