// Package services holds the pure planning engine: exclusion gate, tiering,
// ranking, and the greedy scheduler.
package services

import (
	"strings"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

// IsExcluded reports whether a task must never be sent to an external
// inference service. A leading "." on the title is the user's opt-out
// shorthand; the stored flag is the durable form.
func IsExcluded(t *domain.Task) bool {
	return t.AIExcluded() || strings.HasPrefix(t.Title(), ".")
}

// FilterExcluded partitions tasks into (allowed, excluded), preserving the
// input order within both partitions.
func FilterExcluded(tasks []*domain.Task) (allowed, excluded []*domain.Task) {
	for _, t := range tasks {
		if IsExcluded(t) {
			excluded = append(excluded, t)
		} else {
			allowed = append(allowed, t)
		}
	}
	return allowed, excluded
}
