package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/planora/planora/internal/log"
	"github.com/planora/planora/internal/task"
)

// TaskService provides task persistence.
type TaskService interface {
	Create(ctx context.Context, t *task.Task) (*task.Task, error)
	List(ctx context.Context, userID, status, priority, query string) ([]*task.Task, error)
}

// TaskHandler serves the task endpoints.
type TaskHandler struct {
	tasks  TaskService
	logger log.Logger
}

func NewTaskHandler(tasks TaskService, logger log.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

func (h *TaskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tasks", h.handleCreate)
	mux.HandleFunc("GET /api/tasks", h.handleList)
}

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
}

func (h *TaskHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	created, err := h.tasks.Create(r.Context(), &task.Task{
		UserID:      UserIDFrom(r.Context()),
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := h.tasks.List(r.Context(), UserIDFrom(r.Context()), q.Get("status"), q.Get("priority"), q.Get("query"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}
