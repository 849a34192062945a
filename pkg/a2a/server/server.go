// Package server exposes an agent over the HTTP task API: the agent card,
// task creation and lookup, synchronous and streamed message processing and
// a JSON-RPC style /rpc endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jllopis/taskbridge/pkg/a2a/agentcard"
	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/orchestrator"
	"github.com/jllopis/taskbridge/pkg/task"
)

// Service is the agent behind the server. *agent.Agent satisfies it.
type Service interface {
	Card() *agentcard.Card
	CreateTask(ctx context.Context, params map[string]any) (*task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error)
	AddMessage(ctx context.Context, taskID string, msg message.Message) (message.Message, error)
	ProcessTask(ctx context.Context, taskID string) (orchestrator.TurnResult, error)
	ProcessTaskStream(ctx context.Context, taskID string, sink orchestrator.Sink) (orchestrator.TurnResult, error)
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc    Service
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server for svc.
func New(svc Service, opts ...Option) *Server {
	s := &Server{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP routes requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == agentcard.WellKnownPath {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		agentcard.PublishHandler(s.svc.Card).ServeHTTP(w, r)
		return
	}
	segments := normalizePath(r.URL.Path)
	if len(segments) == 0 {
		http.NotFound(w, r)
		return
	}
	switch segments[0] {
	case "tasks":
		s.handleTasks(w, r, segments)
	case "rpc":
		if r.Method != http.MethodPost || len(segments) != 1 {
			http.NotFound(w, r)
			return
		}
		s.handleRPC(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request, segments []string) {
	switch {
	case len(segments) == 1 && r.Method == http.MethodPost:
		s.handleCreateTask(w, r)
	case len(segments) == 1 && r.Method == http.MethodGet:
		s.handleListTasks(w, r)
	case len(segments) == 2 && r.Method == http.MethodGet:
		s.handleGetTask(w, r, segments[1])
	case len(segments) == 3 && segments[2] == "messages" && r.Method == http.MethodPost:
		s.handleAddMessage(w, r, segments[1])
	case len(segments) == 4 && segments[2] == "messages" && segments[3] == "stream" && r.Method == http.MethodPost:
		s.handleStream(w, r, segments[1])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	params := map[string]any{}
	if err := decodeBody(r, &params); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.svc.CreateTask(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": t.ID})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, id string) {
	t, err := s.svc.GetTask(r.Context(), id)
	if err != nil {
		writeTaskError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := task.Filter{Status: task.Status(query.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, errors.InvalidInput("invalid status %q", filter.Status))
		return
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	tasks, err := s.svc.ListTasks(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// handleAddMessage appends the message and runs a synchronous turn. A turn
// that exhausts its retries is still reported with 200 and status failed.
func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request, id string) {
	var msg message.Message
	if err := decodeBody(r, &msg); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.svc.AddMessage(r.Context(), id, msg); err != nil {
		writeTaskError(w, id, err)
		return
	}
	res, err := s.svc.ProcessTask(r.Context(), id)
	if err != nil && !errors.HasCode(err, errors.CodeExhaustedRetries) {
		writeTaskError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id string) {
	var msg message.Message
	if err := decodeBody(r, &msg); err != nil {
		writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New(errors.CodeInternal, "streaming not supported", nil))
		return
	}
	stored, err := s.svc.AddMessage(r.Context(), id, msg)
	if err != nil {
		writeTaskError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	stream := &sseStream{w: w, f: flusher}

	ctx := r.Context()
	_ = stream.Send(ctx, orchestrator.Event{Name: orchestrator.EventMessageAdded, Data: map[string]string{"message_id": stored.ID}})
	_ = stream.Send(ctx, orchestrator.Event{Name: orchestrator.EventStatusChanged, Data: map[string]string{"status": string(task.StatusWorking)}})

	res, err := s.svc.ProcessTaskStream(ctx, id, stream)
	if err != nil {
		s.logger.WarnContext(ctx, "stream.turn.failed", slog.String("task_id", id), slog.String("error", err.Error()))
	}
	status := res.Status
	if status == "" {
		status = task.StatusFailed
	}
	_ = stream.Send(ctx, orchestrator.Event{Name: orchestrator.EventCompleted, Data: map[string]any{"status": status, "completed": true}})
}

func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.InvalidInput("request body is required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return errors.InvalidInput("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError writes {"error": msg} with the status mapped from err's code.
func writeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	if e := errors.As(err); e != nil {
		msg = e.Message
	}
	writeJSON(w, errors.StatusCode(err), map[string]string{"error": msg})
}

func writeTaskError(w http.ResponseWriter, id string, err error) {
	if errors.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Task not found: %s", id)})
		return
	}
	writeError(w, err)
}

func normalizePath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
