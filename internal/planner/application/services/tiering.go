package services

import (
	"time"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

const (
	deadlineProximity = 24 * time.Hour
	riskThreshold     = 0.7
	impactThreshold   = 0.7
)

// AssignTier classifies a task into tiers 1..9 by the first matching rule.
// Urgency signals (deadline within 24h, high risk, high impact) override the
// category preference ordering. Pure given (task, now).
func AssignTier(t *domain.Task, now time.Time) int {
	if d := t.Deadline(); d != nil {
		until := d.Sub(now)
		if until > 0 && until <= deadlineProximity {
			return 1
		}
	}
	if t.RiskScore() >= riskThreshold {
		return 2
	}
	if t.ImpactScore() >= impactThreshold {
		return 3
	}

	switch t.Category() {
	case domain.CategoryChild:
		return 4
	case domain.CategoryHealth:
		return 5
	case domain.CategoryWork:
		return 6
	case domain.CategoryPersonal, domain.CategoryIdeas:
		return 7
	case domain.CategoryFamily:
		return 8
	default:
		// home, admin, unknown, and anything unrecognized
		return 9
	}
}
