package services

import (
	"math"
	"sort"
	"time"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

// rankKey is the composite ordering key: lower compares first on every field.
type rankKey struct {
	tier         int
	urgencyClass int     // 0 deadline, 1 due_by, 2 none
	urgencyAt    float64 // unix seconds; +Inf when none
	createdAt    time.Time
	id           string
}

func (a rankKey) less(b rankKey) bool {
	if a.tier != b.tier {
		return a.tier < b.tier
	}
	if a.urgencyClass != b.urgencyClass {
		return a.urgencyClass < b.urgencyClass
	}
	if a.urgencyAt != b.urgencyAt {
		return a.urgencyAt < b.urgencyAt
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.id < b.id
}

// StackRank orders tasks by (tier, urgency, created_at, id). The sort is
// stable, so tasks with fully identical keys keep their input order. due_by
// urgency resolves to the end of the user's local day; loc falls back to UTC
// when nil.
func StackRank(tasks []*domain.Task, now time.Time, loc *time.Location) []*domain.Task {
	if loc == nil {
		loc = time.UTC
	}

	ranked := make([]*domain.Task, len(tasks))
	copy(ranked, tasks)

	keys := make(map[*domain.Task]rankKey, len(ranked))
	for _, t := range ranked {
		keys[t] = keyFor(t, now, loc)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return keys[ranked[i]].less(keys[ranked[j]])
	})
	return ranked
}

func keyFor(t *domain.Task, now time.Time, loc *time.Location) rankKey {
	k := rankKey{
		tier:         AssignTier(t, now),
		urgencyClass: 2,
		urgencyAt:    math.Inf(1),
		createdAt:    t.CreatedAt(),
		id:           t.ID().String(),
	}
	switch {
	case t.Deadline() != nil:
		k.urgencyClass = 0
		k.urgencyAt = float64(t.Deadline().Unix())
	case t.DueBy() != nil:
		k.urgencyClass = 1
		k.urgencyAt = float64(endOfLocalDay(*t.DueBy(), loc).Unix())
	}
	return k
}

// endOfLocalDay resolves a date to 23:59:59 in the user's timezone. The
// date is stored as midnight UTC, so its calendar day is read in UTC;
// converting the instant first would shift it a day for western zones.
func endOfLocalDay(day time.Time, loc *time.Location) time.Time {
	d := day.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc)
}
