package evaluation

import "context"

// Repository defines the persistence contract for evaluation records.
//
// The store follows upsert-or-create semantics: a record comes into existence
// on its first upsert, and every write updates only the attributes named by
// the operation. There is no deletion path.
type Repository interface {
	// UpsertAgentEvaluation sets agent_evaluation and evaluation_date for
	// the given key, creating the record if it does not exist. It must
	// never modify teacher_evaluation.
	UpsertAgentEvaluation(ctx context.Context, key RecordKey, evaluation, evaluationDate string) error

	// SetTeacherEvaluation sets teacher_evaluation for the given key,
	// creating the record if it does not exist. Agent attributes are left
	// untouched.
	SetTeacherEvaluation(ctx context.Context, key RecordKey, text string) error

	// Find returns the record for an exact key match, or ErrRecordNotFound.
	Find(ctx context.Context, key RecordKey) (*Record, error)

	// ListByPeriod returns all records for a period, ordered by students_id.
	ListByPeriod(ctx context.Context, period string) ([]*Record, error)
}
