// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/shared"
	"github.com/eval-hub/student-evaluation-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE BATCH COMMAND
// Drives one agent invocation per student over a contiguous block of student
// identifiers, persists each response, and reports the aggregate outcome to
// the operator channel.
// ══════════════════════════════════════════════════════════════════════════════

// Defaults for the batch trigger payload.
const (
	DefaultStudentsID = "1"
	DefaultPeriod     = "2025-01"
	DefaultLoopCount  = 3

	// DefaultPacingDelay is the pause between consecutive agent
	// invocations, respecting the agent endpoint's throughput limits.
	DefaultPacingDelay = 30 * time.Second
)

// ResponseStream is a finite, non-restartable sequence of response fragments
// produced by one agent invocation. Recv blocks until the next fragment
// arrives and returns io.EOF at stream close.
type ResponseStream interface {
	Recv() ([]byte, error)
	Close() error
}

// AgentInvoker invokes the evaluation agent once under a fresh session.
type AgentInvoker interface {
	Invoke(ctx context.Context, sessionID, inputText string) (ResponseStream, error)
}

// Notifier delivers batch outcome reports to the operator channel.
// Delivery is best-effort: implementations log their own failures and an
// unconfigured channel is a silent no-op.
type Notifier interface {
	NotifySuccess(ctx context.Context, period string, processedIDs []string) error
	NotifyFailure(ctx context.Context, period, startingID string, cause error) error
}

// EvaluateBatchCommand contains the parameters of one batch run.
type EvaluateBatchCommand struct {
	// StudentsID is the starting student identifier, as received from the
	// trigger payload. Must parse to a non-negative integer.
	StudentsID string

	// Period identifies the evaluation cycle, e.g. "2025-01".
	Period string

	// LoopCount is the number of consecutive student identifiers to
	// process.
	LoopCount int
}

// Validate applies defaults and checks the command parameters.
func (c *EvaluateBatchCommand) Validate() error {
	if c.StudentsID == "" {
		c.StudentsID = DefaultStudentsID
	}
	if c.Period == "" {
		c.Period = DefaultPeriod
	}
	if strings.TrimSpace(c.Period) == "" {
		return shared.WrapError("evaluation", "EvaluateBatch", shared.ErrInvalidInput, "period cannot be blank", nil)
	}
	if c.LoopCount < 0 {
		return shared.WrapError("evaluation", "EvaluateBatch", shared.ErrInvalidInput,
			fmt.Sprintf("loop_count must be non-negative, got %d", c.LoopCount), nil)
	}
	return nil
}

// startingID parses the starting student identifier.
func (c *EvaluateBatchCommand) startingID() (int, error) {
	id, err := strconv.Atoi(c.StudentsID)
	if err != nil {
		return 0, shared.WrapError("evaluation", "EvaluateBatch", shared.ErrInvalidInput,
			fmt.Sprintf("students_id %q is not numeric", c.StudentsID), err)
	}
	if id < 0 {
		return 0, shared.WrapError("evaluation", "EvaluateBatch", shared.ErrInvalidInput,
			fmt.Sprintf("students_id must be non-negative, got %d", id), nil)
	}
	return id, nil
}

// ProcessedStudent is one per-iteration outcome entry.
type ProcessedStudent struct {
	ID string `json:"id"`
}

// EvaluateBatchResult contains the outcome of one batch run.
type EvaluateBatchResult struct {
	// Succeeded reports whether every iteration completed.
	Succeeded bool

	// Results lists the processed student identifiers in order. Empty on
	// failure: records upserted before the failing iteration stay
	// persisted, but no partial result list is reported.
	Results []ProcessedStudent

	// ErrorMessage describes the failure, empty on success.
	ErrorMessage string

	// Err is the failure cause for errors.Is() inspection by callers.
	Err error `json:"-"`

	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateBatchConfig contains configuration for the handler.
type EvaluateBatchConfig struct {
	// PacingDelay is the pause between consecutive agent invocations.
	// The delay is applied between iterations only, never after the last
	// one.
	PacingDelay time.Duration

	// Sleep performs the pacing delay. Defaults to a context-aware
	// time.After wait; tests inject a recording double.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultEvaluateBatchConfig returns sensible defaults.
func DefaultEvaluateBatchConfig() EvaluateBatchConfig {
	return EvaluateBatchConfig{
		PacingDelay: DefaultPacingDelay,
	}
}

// EvaluateBatchHandler handles the EvaluateBatchCommand.
type EvaluateBatchHandler struct {
	agent    AgentInvoker
	repo     evaluation.Repository
	notifier Notifier
	config   EvaluateBatchConfig
	logger   *slog.Logger
}

// NewEvaluateBatchHandler creates a new EvaluateBatchHandler.
func NewEvaluateBatchHandler(
	agent AgentInvoker,
	repo evaluation.Repository,
	notifier Notifier,
	config EvaluateBatchConfig,
	logger *slog.Logger,
) *EvaluateBatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PacingDelay <= 0 {
		config.PacingDelay = DefaultPacingDelay
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}

	return &EvaluateBatchHandler{
		agent:    agent,
		repo:     repo,
		notifier: notifier,
		config:   config,
		logger:   logger,
	}
}

// Handle executes the batch. Iterations run strictly sequentially; the first
// error aborts the remainder of the batch, leaving earlier upserts in place.
// Exactly one notification (success or failure, never both) is attempted per
// invocation, and exactly one structured result is returned.
func (h *EvaluateBatchHandler) Handle(ctx context.Context, cmd EvaluateBatchCommand) *EvaluateBatchResult {
	result := &EvaluateBatchResult{
		StartedAt: time.Now().UTC(),
	}

	err := h.runBatch(ctx, cmd, result)

	result.CompletedAt = time.Now().UTC()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	if err != nil {
		result.Succeeded = false
		result.Err = err
		result.ErrorMessage = err.Error()
		result.Results = nil

		h.logger.Error("student evaluation batch failed",
			"period", cmd.Period,
			"starting_id", cmd.StudentsID,
			"error", err,
		)
		h.notifyFailure(ctx, cmd, err)
		return result
	}

	result.Succeeded = true

	h.logger.Info("student evaluation batch completed",
		"period", cmd.Period,
		"processed", len(result.Results),
		"duration", result.Duration.String(),
	)
	h.notifySuccess(ctx, cmd, result)
	return result
}

// runBatch performs the sequential evaluation loop.
func (h *EvaluateBatchHandler) runBatch(ctx context.Context, cmd EvaluateBatchCommand, result *EvaluateBatchResult) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	startingID, err := cmd.startingID()
	if err != nil {
		return err
	}

	h.logger.Info("starting student evaluation batch",
		"period", cmd.Period,
		"starting_id", startingID,
		"loop_count", cmd.LoopCount,
	)

	for i := 0; i < cmd.LoopCount; i++ {
		currentID := startingID + i

		response, err := h.evaluateStudent(ctx, currentID, cmd.Period)
		if err != nil {
			return err
		}

		key := evaluation.RecordKey{
			StudentsID: strconv.Itoa(currentID),
			Period:     cmd.Period,
		}
		if err := h.repo.UpsertAgentEvaluation(ctx, key, response, timeutil.StorageTimestampNow()); err != nil {
			return shared.WrapError("evaluation", "EvaluateBatch", evaluation.ErrStore,
				fmt.Sprintf("upsert failed for student %d", currentID), err)
		}

		result.Results = append(result.Results, ProcessedStudent{ID: key.StudentsID})

		if i < cmd.LoopCount-1 {
			if err := h.config.Sleep(ctx, h.config.PacingDelay); err != nil {
				return err
			}
		}
	}

	return nil
}

// evaluateStudent performs a single agent invocation and drains its response
// stream into one string. An empty stream yields an empty evaluation, which
// is not an error.
func (h *EvaluateBatchHandler) evaluateStudent(ctx context.Context, currentID int, period string) (string, error) {
	inputText := fmt.Sprintf(
		"Evaluate the student with attendance number %d. The period is %s.",
		currentID, period,
	)

	// A fresh session per invocation so the agent treats each student as
	// an independent conversation.
	sessionID := uuid.New().String()

	stream, err := h.agent.Invoke(ctx, sessionID, inputText)
	if err != nil {
		return "", shared.WrapError("evaluation", "EvaluateBatch", evaluation.ErrAgentInvocation,
			fmt.Sprintf("invocation failed for student %d", currentID), err)
	}

	response, err := drainStream(stream)
	if err != nil {
		return "", shared.WrapError("evaluation", "EvaluateBatch", evaluation.ErrAgentInvocation,
			fmt.Sprintf("response stream failed for student %d", currentID), err)
	}

	h.logger.Debug("agent response collected",
		"student_id", currentID,
		"session_id", sessionID,
		"response_len", len(response),
	)

	return response, nil
}

// drainStream consumes the fragment stream in full, concatenating fragments
// in arrival order. The stream is always closed.
func drainStream(stream ResponseStream) (string, error) {
	defer stream.Close()

	var b strings.Builder
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.Write(fragment)
	}
}

// notifySuccess reports a completed batch. Notification failures are logged
// and never mask the batch outcome.
func (h *EvaluateBatchHandler) notifySuccess(ctx context.Context, cmd EvaluateBatchCommand, result *EvaluateBatchResult) {
	if h.notifier == nil {
		return
	}

	ids := make([]string, 0, len(result.Results))
	for _, r := range result.Results {
		ids = append(ids, r.ID)
	}

	if err := h.notifier.NotifySuccess(ctx, cmd.Period, ids); err != nil {
		h.logger.Warn("success notification failed", "error", err)
	}
}

// notifyFailure reports an aborted batch.
func (h *EvaluateBatchHandler) notifyFailure(ctx context.Context, cmd EvaluateBatchCommand, cause error) {
	if h.notifier == nil {
		return
	}

	if err := h.notifier.NotifyFailure(ctx, cmd.Period, cmd.StudentsID, cause); err != nil {
		h.logger.Warn("failure notification failed", "error", err)
	}
}

// sleepContext blocks for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
