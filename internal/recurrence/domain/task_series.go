package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	shareddomain "github.com/qnz18/qzwhatnext/internal/shared/domain"
)

var (
	ErrEmptyTitleTemplate = errors.New("title template cannot be empty")
	ErrSeriesDeleted      = errors.New("series is deleted")
)

const DefaultDurationMin = 30

// TaskSeries is a recurring task definition. It never appears on the
// schedule itself; the materializer stamps out concrete task occurrences
// from it, habit-style.
type TaskSeries struct {
	shareddomain.BaseEntity

	userID          uuid.UUID
	titleTemplate   string
	notesTemplate   *string
	durationDefault int
	categoryDefault string
	preset          Preset
	aiExcluded      bool
	deletedAt       *time.Time
}

// NewTaskSeries creates a series from a validated preset.
func NewTaskSeries(userID uuid.UUID, titleTemplate string, preset Preset) (*TaskSeries, error) {
	titleTemplate = strings.TrimSpace(titleTemplate)
	if titleTemplate == "" {
		return nil, ErrEmptyTitleTemplate
	}
	if err := preset.Validate(); err != nil {
		return nil, err
	}
	return &TaskSeries{
		BaseEntity:      shareddomain.NewBaseEntity(),
		userID:          userID,
		titleTemplate:   titleTemplate,
		durationDefault: DefaultDurationMin,
		categoryDefault: "unknown",
		preset:          preset,
	}, nil
}

// RehydrateTaskSeriesParams carries persisted state back into the entity.
type RehydrateTaskSeriesParams struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	TitleTemplate   string
	NotesTemplate   *string
	DurationDefault int
	CategoryDefault string
	Preset          Preset
	AIExcluded      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

func RehydrateTaskSeries(p RehydrateTaskSeriesParams) *TaskSeries {
	return &TaskSeries{
		BaseEntity:      shareddomain.RehydrateBaseEntity(p.ID, p.CreatedAt, p.UpdatedAt),
		userID:          p.UserID,
		titleTemplate:   p.TitleTemplate,
		notesTemplate:   p.NotesTemplate,
		durationDefault: p.DurationDefault,
		categoryDefault: p.CategoryDefault,
		preset:          p.Preset,
		aiExcluded:      p.AIExcluded,
		deletedAt:       p.DeletedAt,
	}
}

func (s *TaskSeries) UserID() uuid.UUID      { return s.userID }
func (s *TaskSeries) TitleTemplate() string  { return s.titleTemplate }
func (s *TaskSeries) NotesTemplate() *string { return s.notesTemplate }
func (s *TaskSeries) DurationDefault() int   { return s.durationDefault }
func (s *TaskSeries) CategoryDefault() string { return s.categoryDefault }
func (s *TaskSeries) Preset() Preset         { return s.preset }
func (s *TaskSeries) AIExcluded() bool       { return s.aiExcluded }
func (s *TaskSeries) DeletedAt() *time.Time  { return s.deletedAt }
func (s *TaskSeries) IsDeleted() bool        { return s.deletedAt != nil }

func (s *TaskSeries) SetTitleTemplate(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitleTemplate
	}
	s.titleTemplate = title
	s.Touch()
	return nil
}

func (s *TaskSeries) SetNotesTemplate(notes *string) {
	s.notesTemplate = notes
	s.Touch()
}

func (s *TaskSeries) SetDurationDefault(minutes int) {
	if minutes < 1 {
		minutes = DefaultDurationMin
	}
	s.durationDefault = minutes
	s.Touch()
}

func (s *TaskSeries) SetCategoryDefault(category string) {
	s.categoryDefault = category
	s.Touch()
}

func (s *TaskSeries) SetAIExcluded(excluded bool) {
	s.aiExcluded = excluded
	s.Touch()
}

func (s *TaskSeries) SetPreset(preset Preset) error {
	if err := preset.Validate(); err != nil {
		return err
	}
	s.preset = preset
	s.Touch()
	return nil
}

func (s *TaskSeries) SoftDelete(now time.Time) {
	if s.deletedAt != nil {
		return
	}
	at := now.UTC()
	s.deletedAt = &at
	s.TouchAt(now)
}
