package redis

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
)

// countingRepo is an in-memory evaluation.Repository that counts calls so
// tests can tell whether a read was served from cache or from the store.
type countingRepo struct {
	records map[evaluation.RecordKey]*evaluation.Record

	findCalls int
	listCalls int
}

func newCountingRepo() *countingRepo {
	return &countingRepo{records: make(map[evaluation.RecordKey]*evaluation.Record)}
}

func (r *countingRepo) UpsertAgentEvaluation(ctx context.Context, key evaluation.RecordKey, eval, evaluationDate string) error {
	rec, ok := r.records[key]
	if !ok {
		rec = &evaluation.Record{StudentsID: key.StudentsID, Period: key.Period}
		r.records[key] = rec
	}
	rec.AgentEvaluation = eval
	rec.EvaluationDate = evaluationDate
	return nil
}

func (r *countingRepo) SetTeacherEvaluation(ctx context.Context, key evaluation.RecordKey, text string) error {
	rec, ok := r.records[key]
	if !ok {
		rec = &evaluation.Record{StudentsID: key.StudentsID, Period: key.Period}
		r.records[key] = rec
	}
	rec.TeacherEvaluation = text
	return nil
}

func (r *countingRepo) Find(ctx context.Context, key evaluation.RecordKey) (*evaluation.Record, error) {
	r.findCalls++
	rec, ok := r.records[key]
	if !ok {
		return nil, evaluation.ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *countingRepo) ListByPeriod(ctx context.Context, period string) ([]*evaluation.Record, error) {
	r.listCalls++
	var out []*evaluation.Record
	for _, rec := range r.records {
		if rec.Period == period {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func setupCachedRepo(t *testing.T) (*miniredis.Miniredis, *countingRepo, *CachedRepository) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = host
	cfg.Port = port

	cache, err := NewCache(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	repo := newCountingRepo()
	return mr, repo, NewCachedRepository(repo, NewEvaluationCache(cache), nil)
}

func TestCachedRepository_FindServesSecondReadFromCache(t *testing.T) {
	_, repo, cached := setupCachedRepo(t)
	ctx := context.Background()

	key := evaluation.RecordKey{StudentsID: "7", Period: "2025-01"}
	require.NoError(t, repo.UpsertAgentEvaluation(ctx, key, "good progress", "2025-01-31T10_00_00"))

	first, err := cached.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "good progress", first.AgentEvaluation)
	assert.Equal(t, 1, repo.findCalls)

	second, err := cached.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "good progress", second.AgentEvaluation)
	assert.Equal(t, 1, repo.findCalls, "second read should not hit the store")
}

func TestCachedRepository_UpsertInvalidatesCachedRecord(t *testing.T) {
	_, repo, cached := setupCachedRepo(t)
	ctx := context.Background()

	key := evaluation.RecordKey{StudentsID: "7", Period: "2025-01"}
	require.NoError(t, cached.UpsertAgentEvaluation(ctx, key, "first run", "2025-01-31T10_00_00"))

	_, err := cached.Find(ctx, key)
	require.NoError(t, err)

	require.NoError(t, cached.UpsertAgentEvaluation(ctx, key, "second run", "2025-02-01T10_00_00"))

	rec, err := cached.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second run", rec.AgentEvaluation)
	assert.Equal(t, 2, repo.findCalls)
}

func TestCachedRepository_ReviewInvalidatesCachedRecord(t *testing.T) {
	_, repo, cached := setupCachedRepo(t)
	ctx := context.Background()

	key := evaluation.RecordKey{StudentsID: "3", Period: "2025-01"}
	require.NoError(t, cached.UpsertAgentEvaluation(ctx, key, "steady work", "2025-01-31T10_00_00"))

	_, err := cached.Find(ctx, key)
	require.NoError(t, err)

	require.NoError(t, cached.SetTeacherEvaluation(ctx, key, "agreed"))

	rec, err := cached.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "steady work", rec.AgentEvaluation)
	assert.Equal(t, "agreed", rec.TeacherEvaluation)
	assert.Equal(t, 2, repo.findCalls)
}

func TestCachedRepository_FindMissingRecord(t *testing.T) {
	_, _, cached := setupCachedRepo(t)

	_, err := cached.Find(context.Background(), evaluation.RecordKey{StudentsID: "404", Period: "2025-01"})
	assert.ErrorIs(t, err, evaluation.ErrRecordNotFound)
}

func TestCachedRepository_ListByPeriodBypassesCache(t *testing.T) {
	_, repo, cached := setupCachedRepo(t)
	ctx := context.Background()

	key := evaluation.RecordKey{StudentsID: "1", Period: "2025-01"}
	require.NoError(t, cached.UpsertAgentEvaluation(ctx, key, "ok", "2025-01-31T10_00_00"))

	for i := 0; i < 2; i++ {
		records, err := cached.ListByPeriod(ctx, "2025-01")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	}
	assert.Equal(t, 2, repo.listCalls)
}

func TestCachedRepository_DegradesWhenRedisIsDown(t *testing.T) {
	mr, repo, cached := setupCachedRepo(t)
	ctx := context.Background()

	key := evaluation.RecordKey{StudentsID: "9", Period: "2025-01"}
	require.NoError(t, repo.UpsertAgentEvaluation(ctx, key, "fine", "2025-01-31T10_00_00"))

	mr.Close()

	rec, err := cached.Find(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "fine", rec.AgentEvaluation)
}

func TestEvaluationKey(t *testing.T) {
	assert.Equal(t, "evaluation:2025-01:42", EvaluationKey("42", "2025-01"))
}
