package command

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/shared"
	"github.com/eval-hub/student-evaluation-hub/pkg/timeutil"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test doubles
// ─────────────────────────────────────────────────────────────────────────────

type fakeStream struct {
	fragments []string
	pos       int
	failAt    int // fragment index at which Recv errors, -1 to disable
	closed    bool
}

func (s *fakeStream) Recv() ([]byte, error) {
	if s.failAt >= 0 && s.pos == s.failAt {
		return nil, errors.New("connection reset mid-stream")
	}
	if s.pos >= len(s.fragments) {
		return nil, io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return []byte(f), nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type agentCall struct {
	sessionID string
	inputText string
}

type fakeAgent struct {
	fragments  []string
	failOnCall int // 0-based call index that fails, -1 to disable
	streamFail int // passed to fakeStream.failAt
	calls      []agentCall
	streams    []*fakeStream
}

func newFakeAgent(fragments ...string) *fakeAgent {
	return &fakeAgent{fragments: fragments, failOnCall: -1, streamFail: -1}
}

func (a *fakeAgent) Invoke(ctx context.Context, sessionID, inputText string) (ResponseStream, error) {
	call := len(a.calls)
	a.calls = append(a.calls, agentCall{sessionID: sessionID, inputText: inputText})

	if a.failOnCall >= 0 && call == a.failOnCall {
		return nil, errors.New("agent runtime unavailable")
	}

	s := &fakeStream{fragments: a.fragments, failAt: a.streamFail}
	a.streams = append(a.streams, s)
	return s, nil
}

type fakeRepo struct {
	records    map[evaluation.RecordKey]*evaluation.Record
	failUpsert bool
	upserts    []evaluation.RecordKey
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[evaluation.RecordKey]*evaluation.Record)}
}

func (r *fakeRepo) UpsertAgentEvaluation(ctx context.Context, key evaluation.RecordKey, eval, date string) error {
	if r.failUpsert {
		return errors.New("store unavailable")
	}
	r.upserts = append(r.upserts, key)
	rec, ok := r.records[key]
	if !ok {
		rec = &evaluation.Record{StudentsID: key.StudentsID, Period: key.Period}
		r.records[key] = rec
	}
	rec.AgentEvaluation = eval
	rec.EvaluationDate = date
	return nil
}

func (r *fakeRepo) SetTeacherEvaluation(ctx context.Context, key evaluation.RecordKey, text string) error {
	rec, ok := r.records[key]
	if !ok {
		rec = &evaluation.Record{StudentsID: key.StudentsID, Period: key.Period}
		r.records[key] = rec
	}
	rec.TeacherEvaluation = text
	return nil
}

func (r *fakeRepo) Find(ctx context.Context, key evaluation.RecordKey) (*evaluation.Record, error) {
	rec, ok := r.records[key]
	if !ok {
		return nil, evaluation.ErrRecordNotFound
	}
	return rec, nil
}

func (r *fakeRepo) ListByPeriod(ctx context.Context, period string) ([]*evaluation.Record, error) {
	var out []*evaluation.Record
	for _, rec := range r.records {
		if rec.Period == period {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	successCalls int
	failureCalls int

	lastPeriod     string
	lastIDs        []string
	lastStartingID string
	lastCause      error
	err            error
}

func (n *fakeNotifier) NotifySuccess(ctx context.Context, period string, ids []string) error {
	n.successCalls++
	n.lastPeriod = period
	n.lastIDs = ids
	return n.err
}

func (n *fakeNotifier) NotifyFailure(ctx context.Context, period, startingID string, cause error) error {
	n.failureCalls++
	n.lastPeriod = period
	n.lastStartingID = startingID
	n.lastCause = cause
	return n.err
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newHandler(agent AgentInvoker, repo evaluation.Repository, notifier Notifier, sleeper *sleepRecorder) *EvaluateBatchHandler {
	cfg := DefaultEvaluateBatchConfig()
	if sleeper != nil {
		cfg.Sleep = sleeper.sleep
	} else {
		cfg.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	}
	return NewEvaluateBatchHandler(agent, repo, notifier, cfg, nil)
}

// ─────────────────────────────────────────────────────────────────────────────
// Success path
// ─────────────────────────────────────────────────────────────────────────────

func TestHandle_SuccessfulBatchPersistsAllRecords(t *testing.T) {
	agent := newFakeAgent("OK")
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	h := newHandler(agent, repo, notifier, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "5",
		Period:     "2025-03",
		LoopCount:  2,
	})

	require.True(t, result.Succeeded)
	assert.Equal(t, []ProcessedStudent{{ID: "5"}, {ID: "6"}}, result.Results)

	for _, id := range []string{"5", "6"} {
		rec, err := repo.Find(context.Background(), evaluation.RecordKey{StudentsID: id, Period: "2025-03"})
		require.NoError(t, err, "record for id %s", id)
		assert.Equal(t, "OK", rec.AgentEvaluation)
		assert.True(t, timeutil.IsStorageSafe(rec.EvaluationDate),
			"evaluation_date %q must not contain ':' or '.'", rec.EvaluationDate)
	}

	assert.Equal(t, 1, notifier.successCalls)
	assert.Equal(t, 0, notifier.failureCalls)
	assert.Equal(t, "2025-03", notifier.lastPeriod)
	assert.Equal(t, []string{"5", "6"}, notifier.lastIDs)
}

func TestHandle_ResultIDsAreOrderedAndContiguous(t *testing.T) {
	agent := newFakeAgent("x")
	h := newHandler(agent, newFakeRepo(), nil, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "10",
		Period:     "2025-06",
		LoopCount:  5,
	})

	require.True(t, result.Succeeded)
	require.Len(t, result.Results, 5)
	for i, r := range result.Results {
		assert.Equal(t, ProcessedStudent{ID: []string{"10", "11", "12", "13", "14"}[i]}, r)
	}
}

func TestHandle_ZeroLoopCount(t *testing.T) {
	agent := newFakeAgent("x")
	notifier := &fakeNotifier{}
	sleeper := &sleepRecorder{}
	h := newHandler(agent, newFakeRepo(), notifier, sleeper)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "1",
		Period:     "2025-01",
		LoopCount:  0,
	})

	require.True(t, result.Succeeded)
	assert.Empty(t, result.Results)
	assert.Empty(t, agent.calls)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, 1, notifier.successCalls)
}

func TestHandle_FragmentsConcatenatedInArrivalOrder(t *testing.T) {
	agent := newFakeAgent("The student ", "is doing ", "well.")
	repo := newFakeRepo()
	h := newHandler(agent, repo, nil, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "3",
		Period:     "2025-02",
		LoopCount:  1,
	})

	require.True(t, result.Succeeded)
	rec, err := repo.Find(context.Background(), evaluation.RecordKey{StudentsID: "3", Period: "2025-02"})
	require.NoError(t, err)
	assert.Equal(t, "The student is doing well.", rec.AgentEvaluation)
}

func TestHandle_EmptyStreamPersistsEmptyEvaluation(t *testing.T) {
	agent := newFakeAgent() // no fragments
	repo := newFakeRepo()
	h := newHandler(agent, repo, nil, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "7",
		Period:     "2025-04",
		LoopCount:  1,
	})

	require.True(t, result.Succeeded)
	rec, err := repo.Find(context.Background(), evaluation.RecordKey{StudentsID: "7", Period: "2025-04"})
	require.NoError(t, err)
	assert.Equal(t, "", rec.AgentEvaluation)
	assert.NotEmpty(t, rec.EvaluationDate)
}

func TestHandle_FreshSessionPerInvocation(t *testing.T) {
	agent := newFakeAgent("ok")
	h := newHandler(agent, newFakeRepo(), nil, nil)

	h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "1",
		Period:     "2025-01",
		LoopCount:  3,
	})

	require.Len(t, agent.calls, 3)
	seen := make(map[string]bool)
	for _, call := range agent.calls {
		assert.NotEmpty(t, call.sessionID)
		assert.False(t, seen[call.sessionID], "session identifiers must be unique per invocation")
		seen[call.sessionID] = true
	}
}

func TestHandle_InputTextEmbedsStudentAndPeriod(t *testing.T) {
	agent := newFakeAgent("ok")
	h := newHandler(agent, newFakeRepo(), nil, nil)

	h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "42",
		Period:     "2025-09",
		LoopCount:  2,
	})

	require.Len(t, agent.calls, 2)
	assert.Contains(t, agent.calls[0].inputText, "42")
	assert.Contains(t, agent.calls[0].inputText, "2025-09")
	assert.Contains(t, agent.calls[1].inputText, "43")
}

func TestHandle_StreamsAreAlwaysClosed(t *testing.T) {
	agent := newFakeAgent("ok")
	h := newHandler(agent, newFakeRepo(), nil, nil)

	h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "1",
		Period:     "2025-01",
		LoopCount:  2,
	})

	require.Len(t, agent.streams, 2)
	for _, s := range agent.streams {
		assert.True(t, s.closed)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Pacing
// ─────────────────────────────────────────────────────────────────────────────

func TestHandle_PacingBetweenIterationsOnly(t *testing.T) {
	agent := newFakeAgent("ok")
	sleeper := &sleepRecorder{}
	h := newHandler(agent, newFakeRepo(), nil, sleeper)

	h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "1",
		Period:     "2025-01",
		LoopCount:  3,
	})

	// n iterations, n-1 delays: no pause after the final invocation.
	require.Len(t, sleeper.delays, 2)
	for _, d := range sleeper.delays {
		assert.Equal(t, DefaultPacingDelay, d)
	}
}

func TestHandle_SingleIterationNeverSleeps(t *testing.T) {
	sleeper := &sleepRecorder{}
	h := newHandler(newFakeAgent("ok"), newFakeRepo(), nil, sleeper)

	h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "1",
		Period:     "2025-01",
		LoopCount:  1,
	})

	assert.Empty(t, sleeper.delays)
}

// ─────────────────────────────────────────────────────────────────────────────
// Failure paths
// ─────────────────────────────────────────────────────────────────────────────

func TestHandle_AgentFailureAbortsBatch(t *testing.T) {
	agent := newFakeAgent("OK")
	agent.failOnCall = 1 // second student (id 6) fails
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	h := newHandler(agent, repo, notifier, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "5",
		Period:     "2025-03",
		LoopCount:  3,
	})

	require.False(t, result.Succeeded)
	assert.Empty(t, result.Results, "no partial result list on failure")
	assert.ErrorIs(t, result.Err, evaluation.ErrAgentInvocation)
	assert.NotEmpty(t, result.ErrorMessage)

	// Record for id 5 stays persisted; 6 and 7 were never written.
	_, err := repo.Find(context.Background(), evaluation.RecordKey{StudentsID: "5", Period: "2025-03"})
	assert.NoError(t, err)
	for _, id := range []string{"6", "7"} {
		_, err := repo.Find(context.Background(), evaluation.RecordKey{StudentsID: id, Period: "2025-03"})
		assert.ErrorIs(t, err, evaluation.ErrRecordNotFound)
	}

	// Iteration for id 7 never ran.
	assert.Len(t, agent.calls, 2)

	assert.Equal(t, 0, notifier.successCalls)
	assert.Equal(t, 1, notifier.failureCalls)
	assert.Equal(t, "5", notifier.lastStartingID)
	assert.Equal(t, "2025-03", notifier.lastPeriod)
}

func TestHandle_StreamFailureMidResponse(t *testing.T) {
	agent := newFakeAgent("partial ", "response")
	agent.streamFail = 1 // fails after the first fragment
	repo := newFakeRepo()
	h := newHandler(agent, repo, nil, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "1",
		Period:     "2025-01",
		LoopCount:  1,
	})

	require.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Err, evaluation.ErrAgentInvocation)
	assert.Empty(t, repo.upserts, "a partially read response must not be persisted")
}

func TestHandle_StoreFailureAbortsBatch(t *testing.T) {
	repo := newFakeRepo()
	repo.failUpsert = true
	notifier := &fakeNotifier{}
	h := newHandler(newFakeAgent("ok"), repo, notifier, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "1",
		Period:     "2025-01",
		LoopCount:  2,
	})

	require.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Err, evaluation.ErrStore)
	assert.Equal(t, 1, notifier.failureCalls)
}

func TestHandle_NonNumericStartingIDFailsBeforeAnyAgentCall(t *testing.T) {
	agent := newFakeAgent("ok")
	notifier := &fakeNotifier{}
	h := newHandler(agent, newFakeRepo(), notifier, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "abc",
		Period:     "2025-01",
		LoopCount:  3,
	})

	require.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Err, shared.ErrInvalidInput)
	assert.Empty(t, agent.calls)
	assert.Equal(t, 1, notifier.failureCalls)
	assert.Equal(t, "abc", notifier.lastStartingID)
}

func TestHandle_NegativeLoopCountIsInvalidInput(t *testing.T) {
	h := newHandler(newFakeAgent("ok"), newFakeRepo(), nil, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "1",
		Period:     "2025-01",
		LoopCount:  -1,
	})

	require.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Err, shared.ErrInvalidInput)
}

func TestHandle_NotifierErrorDoesNotMaskOutcome(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("channel down")}
	h := newHandler(newFakeAgent("ok"), newFakeRepo(), notifier, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{
		StudentsID: "1",
		Period:     "2025-01",
		LoopCount:  1,
	})

	assert.True(t, result.Succeeded)
	assert.Equal(t, 1, notifier.successCalls)
}

// ─────────────────────────────────────────────────────────────────────────────
// Idempotence and defaults
// ─────────────────────────────────────────────────────────────────────────────

func TestHandle_RerunOverwritesAgentFieldsButKeepsTeacherReview(t *testing.T) {
	repo := newFakeRepo()
	key := evaluation.RecordKey{StudentsID: "5", Period: "2025-03"}
	require.NoError(t, repo.SetTeacherEvaluation(context.Background(), key, "solid work"))

	cmd := EvaluateBatchCommand{StudentsID: "5", Period: "2025-03", LoopCount: 1}

	h := newHandler(newFakeAgent("first run"), repo, nil, nil)
	require.True(t, h.Handle(context.Background(), cmd).Succeeded)

	h = newHandler(newFakeAgent("second run"), repo, nil, nil)
	require.True(t, h.Handle(context.Background(), cmd).Succeeded)

	rec, err := repo.Find(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "second run", rec.AgentEvaluation)
	assert.Equal(t, "solid work", rec.TeacherEvaluation)
}

func TestHandle_AppliesDefaults(t *testing.T) {
	agent := newFakeAgent("ok")
	h := newHandler(agent, newFakeRepo(), nil, nil)

	result := h.Handle(context.Background(), EvaluateBatchCommand{LoopCount: DefaultLoopCount})

	require.True(t, result.Succeeded)
	require.Len(t, result.Results, 3)
	assert.Equal(t, "1", result.Results[0].ID)
	assert.Contains(t, agent.calls[0].inputText, DefaultPeriod)
}
