// Package query implements the read side of the application layer.
package query

import (
	"context"
	"log/slog"
	"strings"

	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// GetEvaluationQuery requests a single evaluation record.
type GetEvaluationQuery struct {
	StudentsID string
	Period     string
}

// Validate checks the query parameters.
func (q *GetEvaluationQuery) Validate() error {
	if strings.TrimSpace(q.StudentsID) == "" {
		return shared.WrapError("evaluation", "GetEvaluation", shared.ErrInvalidInput, "students_id is required", nil)
	}
	if strings.TrimSpace(q.Period) == "" {
		return shared.WrapError("evaluation", "GetEvaluation", shared.ErrInvalidInput, "period is required", nil)
	}
	return nil
}

// ListEvaluationsQuery requests all records for a period.
type ListEvaluationsQuery struct {
	Period string
}

// Validate checks the query parameters.
func (q *ListEvaluationsQuery) Validate() error {
	if strings.TrimSpace(q.Period) == "" {
		return shared.WrapError("evaluation", "ListEvaluations", shared.ErrInvalidInput, "period is required", nil)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetEvaluationsHandler serves evaluation reads for the function dispatcher
// and the review surface.
type GetEvaluationsHandler struct {
	repo   evaluation.Repository
	logger *slog.Logger
}

// NewGetEvaluationsHandler creates a new GetEvaluationsHandler.
func NewGetEvaluationsHandler(repo evaluation.Repository, logger *slog.Logger) *GetEvaluationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetEvaluationsHandler{
		repo:   repo,
		logger: logger,
	}
}

// HandleGet returns the record for a single student and period.
// Returns evaluation.ErrRecordNotFound when no row exists.
func (h *GetEvaluationsHandler) HandleGet(ctx context.Context, q GetEvaluationQuery) (*evaluation.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	key := evaluation.RecordKey{StudentsID: q.StudentsID, Period: q.Period}
	rec, err := h.repo.Find(ctx, key)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("evaluation fetched",
		"students_id", q.StudentsID,
		"period", q.Period,
		"has_teacher_review", rec.HasTeacherReview(),
	)

	return rec, nil
}

// HandleList returns all records for a period ordered by student identifier.
func (h *GetEvaluationsHandler) HandleList(ctx context.Context, q ListEvaluationsQuery) ([]*evaluation.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	records, err := h.repo.ListByPeriod(ctx, q.Period)
	if err != nil {
		return nil, err
	}

	h.logger.Debug("evaluations listed", "period", q.Period, "count", len(records))

	return records, nil
}
