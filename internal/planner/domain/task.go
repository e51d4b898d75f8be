// Package domain holds the planner's core entities: tasks and the scheduled
// blocks they occupy on the timeline.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qnz18/qzwhatnext/internal/shared/domain"
)

var (
	ErrEmptyTitle       = errors.New("task title cannot be empty")
	ErrInvalidDuration  = errors.New("estimated duration must be positive")
	ErrScoreOutOfRange  = errors.New("score must be between 0 and 1")
	ErrInvalidWindow    = errors.New("flexibility window end must follow start within 24 hours")
	ErrTaskDeleted      = errors.New("task is deleted")
	ErrTaskNotOpen      = errors.New("task is not open")
	ErrTaskAlreadyFinal = errors.New("task is already completed or missed")
)

const (
	DefaultDurationMin        = 30
	DefaultDurationConfidence = 0.5
	DefaultRiskScore          = 0.3
	DefaultImpactScore        = 0.3
)

// FlexibilityWindow bounds where on the timeline a task may be placed. The
// window may span midnight; the end must stay within 24h of the start.
type FlexibilityWindow struct {
	Start time.Time
	End   time.Time
}

// NewFlexibilityWindow validates and builds a window.
func NewFlexibilityWindow(start, end time.Time) (FlexibilityWindow, error) {
	if !end.After(start) || end.Sub(start) > 24*time.Hour {
		return FlexibilityWindow{}, ErrInvalidWindow
	}
	return FlexibilityWindow{Start: start.UTC(), End: end.UTC()}, nil
}

// Task is a unit of work owned by a single user.
type Task struct {
	shareddomain.BaseEntity
	userID             uuid.UUID
	sourceType         SourceType
	sourceID           *string
	title              string
	notes              *string
	category           Category
	energyIntensity    EnergyIntensity
	estimatedDuration  int // minutes
	durationConfidence float64
	riskScore          float64
	impactScore        float64
	deadline           *time.Time
	startAfter         *time.Time // date, midnight UTC
	dueBy              *time.Time // date, midnight UTC
	flexibilityWindow  *FlexibilityWindow
	status             Status

	aiExcluded           bool
	manualPriorityLocked bool
	userLocked           bool
	manuallyScheduled    bool

	recurrenceSeriesID        *uuid.UUID
	recurrenceOccurrenceStart *time.Time

	deletedAt *time.Time
}

// NewTask creates an open task with planner defaults. A title beginning with
// "." marks the task AI-excluded at creation time.
func NewTask(userID uuid.UUID, title string) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	return &Task{
		BaseEntity:         shareddomain.NewBaseEntity(),
		userID:             userID,
		sourceType:         SourceManual,
		title:              title,
		category:           CategoryUnknown,
		energyIntensity:    EnergyMedium,
		estimatedDuration:  DefaultDurationMin,
		durationConfidence: DefaultDurationConfidence,
		riskScore:          DefaultRiskScore,
		impactScore:        DefaultImpactScore,
		status:             StatusOpen,
		aiExcluded:         strings.HasPrefix(title, "."),
	}, nil
}

// RehydrateTaskParams carries the persisted columns of a task row.
type RehydrateTaskParams struct {
	ID                        uuid.UUID
	UserID                    uuid.UUID
	SourceType                SourceType
	SourceID                  *string
	Title                     string
	Notes                     *string
	Category                  Category
	EnergyIntensity           EnergyIntensity
	EstimatedDurationMin      int
	DurationConfidence        float64
	RiskScore                 float64
	ImpactScore               float64
	Deadline                  *time.Time
	StartAfter                *time.Time
	DueBy                     *time.Time
	FlexibilityWindow         *FlexibilityWindow
	Status                    Status
	AIExcluded                bool
	ManualPriorityLocked      bool
	UserLocked                bool
	ManuallyScheduled         bool
	RecurrenceSeriesID        *uuid.UUID
	RecurrenceOccurrenceStart *time.Time
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
	DeletedAt                 *time.Time
}

// RehydrateTask recreates a task from persisted state without validation.
func RehydrateTask(p RehydrateTaskParams) *Task {
	return &Task{
		BaseEntity:                shareddomain.RehydrateBaseEntity(p.ID, p.CreatedAt, p.UpdatedAt),
		userID:                    p.UserID,
		sourceType:                p.SourceType,
		sourceID:                  p.SourceID,
		title:                     p.Title,
		notes:                     p.Notes,
		category:                  p.Category,
		energyIntensity:           p.EnergyIntensity,
		estimatedDuration:         p.EstimatedDurationMin,
		durationConfidence:        p.DurationConfidence,
		riskScore:                 p.RiskScore,
		impactScore:               p.ImpactScore,
		deadline:                  p.Deadline,
		startAfter:                p.StartAfter,
		dueBy:                     p.DueBy,
		flexibilityWindow:         p.FlexibilityWindow,
		status:                    p.Status,
		aiExcluded:                p.AIExcluded,
		manualPriorityLocked:      p.ManualPriorityLocked,
		userLocked:                p.UserLocked,
		manuallyScheduled:         p.ManuallyScheduled,
		recurrenceSeriesID:        p.RecurrenceSeriesID,
		recurrenceOccurrenceStart: p.RecurrenceOccurrenceStart,
		deletedAt:                 p.DeletedAt,
	}
}

// Getters

func (t *Task) UserID() uuid.UUID                      { return t.userID }
func (t *Task) SourceType() SourceType                 { return t.sourceType }
func (t *Task) SourceID() *string                      { return t.sourceID }
func (t *Task) Title() string                          { return t.title }
func (t *Task) Notes() *string                         { return t.notes }
func (t *Task) Category() Category                     { return t.category }
func (t *Task) EnergyIntensity() EnergyIntensity       { return t.energyIntensity }
func (t *Task) EstimatedDurationMin() int              { return t.estimatedDuration }
func (t *Task) DurationConfidence() float64            { return t.durationConfidence }
func (t *Task) RiskScore() float64                     { return t.riskScore }
func (t *Task) ImpactScore() float64                   { return t.impactScore }
func (t *Task) Deadline() *time.Time                   { return t.deadline }
func (t *Task) StartAfter() *time.Time                 { return t.startAfter }
func (t *Task) DueBy() *time.Time                      { return t.dueBy }
func (t *Task) FlexibilityWindow() *FlexibilityWindow  { return t.flexibilityWindow }
func (t *Task) Status() Status                         { return t.status }
func (t *Task) AIExcluded() bool                       { return t.aiExcluded }
func (t *Task) ManualPriorityLocked() bool             { return t.manualPriorityLocked }
func (t *Task) UserLocked() bool                       { return t.userLocked }
func (t *Task) ManuallyScheduled() bool                { return t.manuallyScheduled }
func (t *Task) RecurrenceSeriesID() *uuid.UUID         { return t.recurrenceSeriesID }
func (t *Task) RecurrenceOccurrenceStart() *time.Time  { return t.recurrenceOccurrenceStart }
func (t *Task) DeletedAt() *time.Time                  { return t.deletedAt }
func (t *Task) IsDeleted() bool                        { return t.deletedAt != nil }
func (t *Task) IsOpen() bool                           { return t.status == StatusOpen && !t.IsDeleted() }

// SetTitle updates the title. A leading "." also flips on AI exclusion, the
// same shorthand honored at creation.
func (t *Task) SetTitle(title string) error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	t.title = title
	if strings.HasPrefix(title, ".") {
		t.aiExcluded = true
	}
	t.Touch()
	return nil
}

// SetNotes updates the free-form notes.
func (t *Task) SetNotes(notes *string) error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	t.notes = notes
	t.Touch()
	return nil
}

// SetSource records where the task came from.
func (t *Task) SetSource(sourceType SourceType, sourceID *string) {
	t.sourceType = sourceType
	t.sourceID = sourceID
	t.Touch()
}

// SetCategory updates the category unless the user pinned priority inputs.
func (t *Task) SetCategory(c Category) error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	t.category = c
	t.Touch()
	return nil
}

// SetEnergyIntensity updates the energy demand.
func (t *Task) SetEnergyIntensity(e EnergyIntensity) error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	t.energyIntensity = e
	t.Touch()
	return nil
}

// SetEstimatedDuration updates the duration estimate in minutes.
func (t *Task) SetEstimatedDuration(minutes int) error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	if minutes <= 0 {
		return ErrInvalidDuration
	}
	t.estimatedDuration = minutes
	t.Touch()
	return nil
}

// SetDurationConfidence updates how confident the estimate is.
func (t *Task) SetDurationConfidence(c float64) error {
	if c < 0 || c > 1 {
		return ErrScoreOutOfRange
	}
	t.durationConfidence = c
	t.Touch()
	return nil
}

// SetScores updates the risk and impact signals used by tiering.
func (t *Task) SetScores(risk, impact float64) error {
	if risk < 0 || risk > 1 || impact < 0 || impact > 1 {
		return ErrScoreOutOfRange
	}
	t.riskScore = risk
	t.impactScore = impact
	t.Touch()
	return nil
}

// SetDeadline updates the hard deadline.
func (t *Task) SetDeadline(deadline *time.Time) error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	t.deadline = deadline
	t.Touch()
	return nil
}

// SetStartAfter sets the earliest date placement may begin.
func (t *Task) SetStartAfter(d *time.Time) {
	t.startAfter = d
	t.Touch()
}

// SetDueBy sets the soft due date.
func (t *Task) SetDueBy(d *time.Time) {
	t.dueBy = d
	t.Touch()
}

// SetFlexibilityWindow constrains placement to a window.
func (t *Task) SetFlexibilityWindow(w *FlexibilityWindow) {
	t.flexibilityWindow = w
	t.Touch()
}

// SetAIExcluded toggles the inference exclusion flag.
func (t *Task) SetAIExcluded(excluded bool) {
	t.aiExcluded = excluded
	t.Touch()
}

// LockPriority pins the current classification against automatic updates.
func (t *Task) LockPriority() {
	t.manualPriorityLocked = true
	t.Touch()
}

// SetUserLocked toggles the user-level lock.
func (t *Task) SetUserLocked(locked bool) {
	t.userLocked = locked
	t.Touch()
}

// SetManuallyScheduled marks the task as placed by hand; the scheduler skips it.
func (t *Task) SetManuallyScheduled(v bool) {
	t.manuallyScheduled = v
	t.Touch()
}

// LinkRecurrence ties the task to the series occurrence it materializes.
func (t *Task) LinkRecurrence(seriesID uuid.UUID, occurrenceStart time.Time) {
	sid := seriesID
	start := occurrenceStart.UTC()
	t.recurrenceSeriesID = &sid
	t.recurrenceOccurrenceStart = &start
	t.sourceType = SourceRecurrence
	t.Touch()
}

// Complete transitions an open task to completed.
func (t *Task) Complete(now time.Time) error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	if t.status != StatusOpen {
		return ErrTaskAlreadyFinal
	}
	t.status = StatusCompleted
	t.TouchAt(now)
	return nil
}

// MarkMissed transitions an open task to missed. Used by the roll-forward
// pass when an occurrence's window has elapsed.
func (t *Task) MarkMissed(now time.Time) error {
	if t.status != StatusOpen {
		return ErrTaskNotOpen
	}
	t.status = StatusMissed
	t.TouchAt(now)
	return nil
}

// Reopen returns a completed or missed task to open.
func (t *Task) Reopen() error {
	if t.IsDeleted() {
		return ErrTaskDeleted
	}
	t.status = StatusOpen
	t.Touch()
	return nil
}

// SoftDelete marks the task deleted; purge is a separate explicit operation.
func (t *Task) SoftDelete(now time.Time) {
	if t.deletedAt != nil {
		return
	}
	deleted := now.UTC()
	t.deletedAt = &deleted
	t.TouchAt(now)
}

// Restore undoes a soft delete.
func (t *Task) Restore() {
	t.deletedAt = nil
	t.Touch()
}
