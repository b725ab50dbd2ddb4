// Package jobs contains the scheduled jobs run by the worker.
package jobs

import (
	"context"
	"log/slog"

	"github.com/eval-hub/student-evaluation-hub/internal/application/command"
)

// EvaluateStudentsJob runs the evaluation batch on a schedule. The batch
// parameters are fixed at construction time; per-run overrides go through
// the HTTP trigger instead.
type EvaluateStudentsJob struct {
	handler *command.EvaluateBatchHandler
	cmd     command.EvaluateBatchCommand
	logger  *slog.Logger
}

// NewEvaluateStudentsJob creates a new EvaluateStudentsJob.
func NewEvaluateStudentsJob(
	handler *command.EvaluateBatchHandler,
	cmd command.EvaluateBatchCommand,
	logger *slog.Logger,
) *EvaluateStudentsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluateStudentsJob{
		handler: handler,
		cmd:     cmd,
		logger:  logger,
	}
}

// Name returns the job name.
func (j *EvaluateStudentsJob) Name() string {
	return "evaluate_students"
}

// Description returns a human-readable description.
func (j *EvaluateStudentsJob) Description() string {
	return "Evaluates a batch of students via the agent and stores the results"
}

// Run executes the batch. The handler owns notification and error
// reporting, so the job only surfaces the terminal error to the scheduler.
func (j *EvaluateStudentsJob) Run(ctx context.Context) error {
	result := j.handler.Handle(ctx, j.cmd)

	if !result.Succeeded {
		return result.Err
	}

	j.logger.Info("evaluation batch job finished",
		"processed", len(result.Results),
		"duration", result.Duration.String(),
	)

	return nil
}
