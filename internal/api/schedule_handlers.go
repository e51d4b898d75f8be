package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	captureapp "github.com/qnz18/qzwhatnext/internal/capture/application"
	"github.com/qnz18/qzwhatnext/internal/planner/application/commands"
	"github.com/qnz18/qzwhatnext/internal/planner/application/queries"
	plannerdomain "github.com/qnz18/qzwhatnext/internal/planner/domain"
)

type captureRequest struct {
	Instruction string     `json:"instruction"`
	EntityID    *uuid.UUID `json:"entity_id"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: codeValidation, Message: err.Error()})
		return
	}
	result, err := s.deps.Capture.Capture(r.Context(), principal(r), req.Instruction, req.EntityID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Action == captureapp.ActionUpdated {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

type overflowTask struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

type rebuildResponse struct {
	StartTime     time.Time          `json:"start_time"`
	Blocks        []queries.BlockDTO `json:"blocks"`
	OverflowTasks []overflowTask     `json:"overflow_tasks"`
	TaskTitles    map[string]string  `json:"task_titles"`
}

func (s *Server) handleRebuildSchedule(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Rebuild.Handle(r.Context(), commands.RebuildScheduleCommand{UserID: principal(r)})
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := rebuildResponse{
		StartTime:     result.StartTime,
		Blocks:        make([]queries.BlockDTO, 0, len(result.Blocks)),
		OverflowTasks: make([]overflowTask, 0, len(result.Overflow)),
		TaskTitles:    make(map[string]string, len(result.TaskTitles)),
	}
	for _, b := range result.Blocks {
		resp.Blocks = append(resp.Blocks, blockToDTO(b, result.TaskTitles))
	}
	for _, t := range result.Overflow {
		resp.OverflowTasks = append(resp.OverflowTasks, overflowTask{ID: t.ID(), Title: t.Title()})
	}
	for id, title := range result.TaskTitles {
		resp.TaskTitles[id.String()] = title
	}
	writeJSON(w, http.StatusOK, resp)
}

func blockToDTO(b *plannerdomain.ScheduledBlock, titles map[uuid.UUID]string) queries.BlockDTO {
	return queries.BlockDTO{
		ID:              b.ID(),
		EntityType:      string(b.EntityType()),
		EntityID:        b.EntityID(),
		StartTime:       b.StartTime(),
		EndTime:         b.EndTime(),
		ScheduledBy:     string(b.ScheduledBy()),
		Locked:          b.Locked(),
		CalendarEventID: b.CalendarEventID(),
		TaskTitle:       titles[b.EntityID()],
	}
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.deps.GetSchedule.Handle(r.Context(), queries.GetScheduleQuery{UserID: principal(r)})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(schedule.Blocks) == 0 {
		writeJSON(w, http.StatusNotFound, errorBody{Code: codeNotFound, Message: "no schedule"})
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) handleToggleLock(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			s.writeError(w, plannerdomain.ErrBlockNotFound)
			return
		}
		if err := s.deps.ToggleLock.Handle(r.Context(), commands.ToggleBlockLockCommand{
			UserID: principal(r), BlockID: id, Locked: locked,
		}); err != nil {
			s.writeError(w, err)
			return
		}
		state := "unlocked"
		if locked {
			state = "locked"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": state})
	}
}

type syncResponse struct {
	EventsCreated  int      `json:"events_created"`
	EventIDs       []string `json:"event_ids"`
	EventsPatched  int      `json:"events_patched"`
	EventsDeleted  int      `json:"events_deleted"`
	BlocksImported int      `json:"blocks_imported"`
}

func (s *Server) handleSyncCalendar(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Reconciler.Reconcile(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	eventIDs := result.EventIDs
	if eventIDs == nil {
		eventIDs = []string{}
	}
	writeJSON(w, http.StatusOK, syncResponse{
		EventsCreated:  result.EventsCreated,
		EventIDs:       eventIDs,
		EventsPatched:  result.EventsPatched,
		EventsDeleted:  result.EventsDeleted,
		BlocksImported: result.BlocksImported,
	})
}
