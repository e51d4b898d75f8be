package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/qnz18/qzwhatnext/internal/planner/application/commands"
	"github.com/qnz18/qzwhatnext/internal/planner/application/queries"
	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
)

type createTaskRequest struct {
	Title      string     `json:"title"`
	Notes      *string    `json:"notes"`
	Category   string     `json:"category"`
	Duration   int        `json:"duration"`
	Deadline   *time.Time `json:"deadline"`
	StartAfter *time.Time `json:"start_after"`
	DueBy      *time.Time `json:"due_by"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: codeValidation, Message: err.Error()})
		return
	}

	result, err := s.deps.CreateTask.Handle(r.Context(), commands.CreateTaskCommand{
		UserID:          principal(r),
		Title:           req.Title,
		Notes:           req.Notes,
		Category:        req.Category,
		DurationMinutes: req.Duration,
		Deadline:        req.Deadline,
		StartAfter:      req.StartAfter,
		DueBy:           req.DueBy,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	dto, err := s.deps.GetTask.Handle(r.Context(), queries.GetTaskQuery{
		UserID: principal(r), TaskID: result.TaskID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.deps.ListTasks.Handle(r.Context(), queries.ListTasksQuery{UserID: principal(r)})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []queries.TaskDTO{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.writeError(w, plannerdomain.ErrTaskNotFound)
		return
	}
	dto, err := s.deps.GetTask.Handle(r.Context(), queries.GetTaskQuery{UserID: principal(r), TaskID: id})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

type updateTaskRequest struct {
	Title         *string    `json:"title"`
	Notes         *string    `json:"notes"`
	Category      *string    `json:"category"`
	Duration      *int       `json:"duration"`
	Deadline      *time.Time `json:"deadline"`
	ClearDeadline bool       `json:"clear_deadline"`
	StartAfter    *time.Time `json:"start_after"`
	DueBy         *time.Time `json:"due_by"`
	AIExcluded    *bool      `json:"ai_excluded"`
	Status        *string    `json:"status"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.writeError(w, plannerdomain.ErrTaskNotFound)
		return
	}
	var req updateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: codeValidation, Message: err.Error()})
		return
	}

	err := s.deps.UpdateTask.Handle(r.Context(), commands.UpdateTaskCommand{
		UserID:          principal(r),
		TaskID:          id,
		Title:           req.Title,
		Notes:           req.Notes,
		Category:        req.Category,
		DurationMinutes: req.Duration,
		Deadline:        req.Deadline,
		ClearDeadline:   req.ClearDeadline,
		StartAfter:      req.StartAfter,
		DueBy:           req.DueBy,
		AIExcluded:      req.AIExcluded,
		Status:          req.Status,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	dto, err := s.deps.GetTask.Handle(r.Context(), queries.GetTaskQuery{UserID: principal(r), TaskID: id})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.writeError(w, plannerdomain.ErrTaskNotFound)
		return
	}
	if err := s.deps.DeleteTask.Handle(r.Context(), commands.DeleteTaskCommand{
		UserID: principal(r), TaskID: id,
	}); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestoreTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.writeError(w, plannerdomain.ErrTaskNotFound)
		return
	}
	if err := s.deps.RestoreTask.Handle(r.Context(), principal(r), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.writeError(w, plannerdomain.ErrTaskNotFound)
		return
	}
	if err := s.deps.CompleteTask.Handle(r.Context(), commands.CompleteTaskCommand{
		UserID: principal(r), TaskID: id,
	}); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurgeTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.writeError(w, plannerdomain.ErrTaskNotFound)
		return
	}
	if err := s.deps.PurgeTask.Handle(r.Context(), principal(r), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bulkRequest struct {
	TaskIDs []uuid.UUID `json:"task_ids"`
}

type bulkResponse struct {
	AffectedCount int         `json:"affected_count"`
	NotFoundIDs   []uuid.UUID `json:"not_found_ids"`
}

func (s *Server) handleBulk(op commands.BulkOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: codeValidation, Message: err.Error()})
			return
		}
		result, err := s.deps.BulkTasks.Handle(r.Context(), commands.BulkTasksCommand{
			UserID: principal(r), TaskIDs: req.TaskIDs, Op: op,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		notFound := result.NotFoundIDs
		if notFound == nil {
			notFound = []uuid.UUID{}
		}
		writeJSON(w, http.StatusOK, bulkResponse{
			AffectedCount: result.AffectedCount,
			NotFoundIDs:   notFound,
		})
	}
}

type addSmartRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleAddSmart(w http.ResponseWriter, r *http.Request) {
	var req addSmartRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: codeValidation, Message: err.Error()})
		return
	}
	result, err := s.deps.AddSmart.Handle(r.Context(), commands.AddSmartTaskCommand{
		UserID: principal(r), Notes: req.Notes,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"task_id":     result.TaskID,
		"title":       result.Title,
		"category":    result.Category.String(),
		"ai_excluded": result.AIExcluded,
	})
}
