// Package evaluation contains the core domain model for student evaluations.
//
// An evaluation is the AI agent's written assessment of one student for one
// evaluation period (e.g. a month). Records are keyed by the composite
// (students_id, period) pair and carry an optional teacher-written review that
// the automated pipeline must never touch.
package evaluation

import (
	"errors"
	"strings"
	"time"

	"github.com/eval-hub/student-evaluation-hub/internal/domain/shared"
)

// Domain errors for the evaluation domain, usable with errors.Is().
var (
	// ErrRecordNotFound is returned when no record exists for a key.
	ErrRecordNotFound = errors.New("evaluation record not found")

	// ErrAgentInvocation indicates the agent call or its response stream failed.
	ErrAgentInvocation = errors.New("agent invocation failed")

	// ErrStore indicates a persistence failure.
	ErrStore = errors.New("evaluation store failure")
)

// Record represents one student's evaluation for one period.
//
// (StudentsID, Period) uniquely identifies a record. AgentEvaluation and
// EvaluationDate are overwritten by each successful agent invocation;
// TeacherEvaluation is written only by the review surface and survives
// agent upserts.
type Record struct {
	// StudentsID is the student identifier (partition key).
	StudentsID string `json:"students_id"`

	// Period identifies the evaluation cycle, e.g. "2025-01" (sort key).
	Period string `json:"period"`

	// AgentEvaluation is the text produced by the agent.
	AgentEvaluation string `json:"agent_evaluation,omitempty"`

	// EvaluationDate is the storage-safe timestamp of the last agent
	// evaluation. Stored as-is, never parsed back.
	EvaluationDate string `json:"evaluation_date,omitempty"`

	// TeacherEvaluation is the optional human review.
	TeacherEvaluation string `json:"teacher_evaluation,omitempty"`
}

// Key returns the composite key of the record.
func (r *Record) Key() RecordKey {
	return RecordKey{StudentsID: r.StudentsID, Period: r.Period}
}

// HasTeacherReview reports whether a teacher review was recorded.
func (r *Record) HasTeacherReview() bool {
	return strings.TrimSpace(r.TeacherEvaluation) != ""
}

// RecordKey is the composite (students_id, period) key.
type RecordKey struct {
	StudentsID string
	Period     string
}

// Validate checks that both key parts are present.
func (k RecordKey) Validate() error {
	if strings.TrimSpace(k.StudentsID) == "" {
		return shared.NewDomainError("evaluation", "Validate", shared.ErrEmptyValue, "students_id is required")
	}
	if strings.TrimSpace(k.Period) == "" {
		return shared.NewDomainError("evaluation", "Validate", shared.ErrEmptyValue, "period is required")
	}
	return nil
}

// AgentResult is the outcome of a single agent invocation, ready to persist.
type AgentResult struct {
	// Evaluation is the full agent response text. May be empty when the
	// agent produced no output; an empty response is not an error.
	Evaluation string

	// EvaluatedAt is when the evaluation completed.
	EvaluatedAt time.Time
}
