// Package postgres implements the PostgreSQL persistence layer for the
// student evaluation hub.
package postgres

import (
	"context"
	"fmt"

	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EvaluationRepository implements evaluation.Repository for PostgreSQL.
type EvaluationRepository struct {
	conn *Connection
}

// NewEvaluationRepository creates a new EvaluationRepository.
func NewEvaluationRepository(conn *Connection) *EvaluationRepository {
	return &EvaluationRepository{conn: conn}
}

// UpsertAgentEvaluation writes the agent's evaluation and its timestamp for
// the given key, creating the row if necessary. The teacher_evaluation
// column is deliberately absent from the update list so a re-run can never
// clobber a review that was entered after the previous run.
func (r *EvaluationRepository) UpsertAgentEvaluation(ctx context.Context, key evaluation.RecordKey, eval, evaluationDate string) error {
	if err := key.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO evaluations (students_id, period, agent_evaluation, evaluation_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (students_id, period) DO UPDATE
		SET agent_evaluation = EXCLUDED.agent_evaluation,
			evaluation_date = EXCLUDED.evaluation_date
	`

	_, err := r.conn.Exec(ctx, query, key.StudentsID, key.Period, eval, evaluationDate)
	if err != nil {
		return fmt.Errorf("failed to upsert agent evaluation: %w", err)
	}

	return nil
}

// SetTeacherEvaluation stores a manual review for the given key, creating
// the row if the agent has not evaluated the student yet.
func (r *EvaluationRepository) SetTeacherEvaluation(ctx context.Context, key evaluation.RecordKey, text string) error {
	if err := key.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO evaluations (students_id, period, teacher_evaluation)
		VALUES ($1, $2, $3)
		ON CONFLICT (students_id, period) DO UPDATE
		SET teacher_evaluation = EXCLUDED.teacher_evaluation
	`

	_, err := r.conn.Exec(ctx, query, key.StudentsID, key.Period, text)
	if err != nil {
		return fmt.Errorf("failed to set teacher evaluation: %w", err)
	}

	return nil
}

// Find returns the record for the given key.
func (r *EvaluationRepository) Find(ctx context.Context, key evaluation.RecordKey) (*evaluation.Record, error) {
	query := `
		SELECT students_id, period, agent_evaluation, evaluation_date, teacher_evaluation
		FROM evaluations
		WHERE students_id = $1 AND period = $2
	`

	row := r.conn.QueryRow(ctx, query, key.StudentsID, key.Period)
	return r.scanRecord(row)
}

// ListByPeriod returns all records for the given period ordered by student
// identifier.
func (r *EvaluationRepository) ListByPeriod(ctx context.Context, period string) ([]*evaluation.Record, error) {
	query := `
		SELECT students_id, period, agent_evaluation, evaluation_date, teacher_evaluation
		FROM evaluations
		WHERE period = $1
		ORDER BY length(students_id), students_id
	`

	rows, err := r.conn.Query(ctx, query, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var records []*evaluation.Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// scanRecord scans a single evaluation row.
func (r *EvaluationRepository) scanRecord(row pgx.Row) (*evaluation.Record, error) {
	var rec evaluation.Record

	err := row.Scan(
		&rec.StudentsID,
		&rec.Period,
		&rec.AgentEvaluation,
		&rec.EvaluationDate,
		&rec.TeacherEvaluation,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, evaluation.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan evaluation: %w", err)
	}

	return &rec, nil
}
