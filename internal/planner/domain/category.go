package domain

// Category classifies what sphere of life a task belongs to. Categories feed
// directly into tier assignment, so the set is closed.
type Category string

const (
	CategoryWork     Category = "work"
	CategoryChild    Category = "child"
	CategoryFamily   Category = "family"
	CategoryHealth   Category = "health"
	CategoryPersonal Category = "personal"
	CategoryIdeas    Category = "ideas"
	CategoryHome     Category = "home"
	CategoryAdmin    Category = "admin"
	CategoryUnknown  Category = "unknown"
)

// legacyCategories maps retired category codes still present in older rows
// onto their current equivalents. Applied on read; writes always emit
// current codes.
var legacyCategories = map[string]Category{
	"social": CategoryFamily,
	"stress": CategoryPersonal,
	"other":  CategoryUnknown,
}

var validCategories = map[Category]struct{}{
	CategoryWork:     {},
	CategoryChild:    {},
	CategoryFamily:   {},
	CategoryHealth:   {},
	CategoryPersonal: {},
	CategoryIdeas:    {},
	CategoryHome:     {},
	CategoryAdmin:    {},
	CategoryUnknown:  {},
}

// ParseCategory normalizes a stored or user-supplied category code,
// translating legacy codes and mapping anything unrecognized to unknown.
func ParseCategory(s string) Category {
	if c, ok := legacyCategories[s]; ok {
		return c
	}
	c := Category(s)
	if _, ok := validCategories[c]; ok {
		return c
	}
	return CategoryUnknown
}

func (c Category) String() string { return string(c) }

// EnergyIntensity describes how demanding a task is to execute.
type EnergyIntensity string

const (
	EnergyLow    EnergyIntensity = "low"
	EnergyMedium EnergyIntensity = "medium"
	EnergyHigh   EnergyIntensity = "high"
)

// ParseEnergyIntensity maps a stored code to an intensity, defaulting to
// medium for unrecognized values.
func ParseEnergyIntensity(s string) EnergyIntensity {
	switch EnergyIntensity(s) {
	case EnergyLow, EnergyMedium, EnergyHigh:
		return EnergyIntensity(s)
	default:
		return EnergyMedium
	}
}

func (e EnergyIntensity) String() string { return string(e) }

// Status represents the task lifecycle state.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
)

// ParseStatus maps a stored code to a status, defaulting to open.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusOpen, StatusCompleted, StatusMissed:
		return Status(s)
	default:
		return StatusOpen
	}
}

func (s Status) String() string { return string(s) }

// SourceType records where a task came from.
type SourceType string

const (
	SourceManual     SourceType = "manual"
	SourceCapture    SourceType = "capture"
	SourceRecurrence SourceType = "recurrence"
	SourceSmart      SourceType = "smart"
)
