package command

import (
	"context"
	"log/slog"
	"strings"

	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/shared"
)

// ReviewEvaluationCommand records a teacher's manual review for a student
// and period. Agent evaluation fields are never touched by this path.
type ReviewEvaluationCommand struct {
	StudentsID string
	Period     string
	Text       string
}

// Validate checks the command parameters.
func (c *ReviewEvaluationCommand) Validate() error {
	if strings.TrimSpace(c.StudentsID) == "" {
		return shared.WrapError("evaluation", "ReviewEvaluation", shared.ErrInvalidInput, "students_id is required", nil)
	}
	if strings.TrimSpace(c.Period) == "" {
		return shared.WrapError("evaluation", "ReviewEvaluation", shared.ErrInvalidInput, "period is required", nil)
	}
	if strings.TrimSpace(c.Text) == "" {
		return shared.WrapError("evaluation", "ReviewEvaluation", shared.ErrInvalidInput, "review text cannot be empty", nil)
	}
	return nil
}

// ReviewEvaluationHandler handles the ReviewEvaluationCommand.
type ReviewEvaluationHandler struct {
	repo   evaluation.Repository
	logger *slog.Logger
}

// NewReviewEvaluationHandler creates a new ReviewEvaluationHandler.
func NewReviewEvaluationHandler(repo evaluation.Repository, logger *slog.Logger) *ReviewEvaluationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewEvaluationHandler{repo: repo, logger: logger}
}

// Handle stores the review.
func (h *ReviewEvaluationHandler) Handle(ctx context.Context, cmd ReviewEvaluationCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	key := evaluation.RecordKey{StudentsID: cmd.StudentsID, Period: cmd.Period}
	if err := h.repo.SetTeacherEvaluation(ctx, key, cmd.Text); err != nil {
		return err
	}

	h.logger.Info("teacher evaluation recorded",
		"students_id", cmd.StudentsID,
		"period", cmd.Period,
	)

	return nil
}
