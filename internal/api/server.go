// Package api exposes the HTTP surface. Routing uses method-qualified
// ServeMux patterns; every business route is scoped to the authenticated
// principal.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	calendarapp "github.com/qnz18/qzwhatnext/internal/calendar/application"
	captureapp "github.com/qnz18/qzwhatnext/internal/capture/application"
	identityservices "github.com/qnz18/qzwhatnext/internal/identity/application/services"
	"github.com/qnz18/qzwhatnext/internal/planner/application/commands"
	"github.com/qnz18/qzwhatnext/internal/planner/application/queries"
)

type ctxKey int

const userIDKey ctxKey = iota

// Deps bundles everything the HTTP surface calls into.
type Deps struct {
	Auth  *identityservices.AuthService
	OAuth *identityservices.GoogleOAuthService

	CreateTask   *commands.CreateTaskHandler
	UpdateTask   *commands.UpdateTaskHandler
	CompleteTask *commands.CompleteTaskHandler
	DeleteTask   *commands.DeleteTaskHandler
	RestoreTask  *commands.RestoreTaskHandler
	PurgeTask    *commands.PurgeTaskHandler
	BulkTasks    *commands.BulkTasksHandler
	AddSmart     *commands.AddSmartTaskHandler
	Rebuild      *commands.RebuildScheduleHandler
	ToggleLock   *commands.ToggleBlockLockHandler

	ListTasks   *queries.ListTasksHandler
	GetTask     *queries.GetTaskHandler
	GetSchedule *queries.GetScheduleHandler

	Capture    *captureapp.Orchestrator
	Reconciler *calendarapp.Reconciler

	Logger *slog.Logger
}

// Server is the HTTP adapter over the application layer.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("POST /tasks", s.authed(s.handleCreateTask))
	mux.Handle("GET /tasks", s.authed(s.handleListTasks))
	mux.Handle("GET /tasks/{id}", s.authed(s.handleGetTask))
	mux.Handle("PUT /tasks/{id}", s.authed(s.handleUpdateTask))
	mux.Handle("DELETE /tasks/{id}", s.authed(s.handleDeleteTask))
	mux.Handle("POST /tasks/{id}/restore", s.authed(s.handleRestoreTask))
	mux.Handle("POST /tasks/{id}/complete", s.authed(s.handleCompleteTask))
	mux.Handle("DELETE /tasks/{id}/purge", s.authed(s.handlePurgeTask))
	mux.Handle("POST /tasks/bulk_delete", s.authed(s.handleBulk(commands.BulkDelete)))
	mux.Handle("POST /tasks/bulk_restore", s.authed(s.handleBulk(commands.BulkRestore)))
	mux.Handle("POST /tasks/bulk_purge", s.authed(s.handleBulk(commands.BulkPurge)))
	mux.Handle("POST /tasks/add_smart", s.authed(s.handleAddSmart))

	mux.Handle("POST /capture", s.authed(s.handleCapture))

	mux.Handle("POST /schedule", s.authed(s.handleRebuildSchedule))
	mux.Handle("GET /schedule", s.authed(s.handleGetSchedule))
	mux.Handle("POST /schedule/blocks/{id}/lock", s.authed(s.handleToggleLock(true)))
	mux.Handle("POST /schedule/blocks/{id}/unlock", s.authed(s.handleToggleLock(false)))

	mux.Handle("POST /sync-calendar", s.authed(s.handleSyncCalendar))

	mux.Handle("GET /auth/google/auth-url", s.authed(s.handleAuthURL))
	mux.Handle("GET /auth/google/calendar/auth-url", s.authed(s.handleAuthURL))
	mux.HandleFunc("GET /auth/google/callback", s.handleOAuthCallback)
	mux.Handle("POST /auth/google/code-exchange", s.authed(s.handleCodeExchange))
	mux.Handle("DELETE /auth/google/calendar", s.authed(s.handleDisconnect))

	return mux
}

// authed authenticates via Authorization bearer JWT or X-Shortcut-Token
// and injects the principal into the request context.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.deps.Auth.Authenticate(r.Context(),
			r.Header.Get("Authorization"), r.Header.Get("X-Shortcut-Token"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func principal(r *http.Request) uuid.UUID {
	userID, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return userID
}

// pathID parses the {id} segment; a malformed ID reads as not-found.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
