package services

import (
	"context"

	"github.com/qnz18/qzwhatnext/internal/planner/domain"
)

// CategoryConfidenceThreshold is the minimum classifier confidence accepted
// before degrading to unknown.
const CategoryConfidenceThreshold = 0.6

// Classifier suggests task attributes from free text. Implementations call
// out of process; callers must consult IsExcluded first so excluded tasks
// never leave the process.
type Classifier interface {
	// InferCategory returns (category, confidence). Low confidence or any
	// upstream failure degrades to (unknown, 0); classification never fails
	// task creation.
	InferCategory(ctx context.Context, notes string) (domain.Category, float64)
	// GenerateTitle summarizes notes into a short actionable title. Returns
	// "" when unavailable.
	GenerateTitle(ctx context.Context, notes string) string
}

// NoopClassifier returns unknown/empty for every input. Used when no
// inference backend is configured.
type NoopClassifier struct{}

func (NoopClassifier) InferCategory(context.Context, string) (domain.Category, float64) {
	return domain.CategoryUnknown, 0
}

func (NoopClassifier) GenerateTitle(context.Context, string) string { return "" }
