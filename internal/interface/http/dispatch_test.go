package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eval-hub/student-evaluation-hub/internal/application/command"
	"github.com/eval-hub/student-evaluation-hub/internal/application/query"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
)

// memoryRepo is an in-memory evaluation.Repository for handler tests.
type memoryRepo struct {
	records map[evaluation.RecordKey]*evaluation.Record
	fail    bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[evaluation.RecordKey]*evaluation.Record)}
}

func (r *memoryRepo) UpsertAgentEvaluation(ctx context.Context, key evaluation.RecordKey, eval, date string) error {
	rec, ok := r.records[key]
	if !ok {
		rec = &evaluation.Record{StudentsID: key.StudentsID, Period: key.Period}
		r.records[key] = rec
	}
	rec.AgentEvaluation = eval
	rec.EvaluationDate = date
	return nil
}

func (r *memoryRepo) SetTeacherEvaluation(ctx context.Context, key evaluation.RecordKey, text string) error {
	rec, ok := r.records[key]
	if !ok {
		rec = &evaluation.Record{StudentsID: key.StudentsID, Period: key.Period}
		r.records[key] = rec
	}
	rec.TeacherEvaluation = text
	return nil
}

func (r *memoryRepo) Find(ctx context.Context, key evaluation.RecordKey) (*evaluation.Record, error) {
	if r.fail {
		return nil, assertedStoreError{}
	}
	rec, ok := r.records[key]
	if !ok {
		return nil, evaluation.ErrRecordNotFound
	}
	return rec, nil
}

func (r *memoryRepo) ListByPeriod(ctx context.Context, period string) ([]*evaluation.Record, error) {
	if r.fail {
		return nil, assertedStoreError{}
	}
	var out []*evaluation.Record
	for _, rec := range r.records {
		if rec.Period == period {
			out = append(out, rec)
		}
	}
	return out, nil
}

type assertedStoreError struct{}

func (assertedStoreError) Error() string { return "store query failed" }

func newTestServer(t *testing.T, repo evaluation.Repository) *Server {
	t.Helper()
	return NewServer(DefaultConfig(), Dependencies{
		ReviewEvaluationHandler: command.NewReviewEvaluationHandler(repo, nil),
		GetEvaluationsHandler:   query.NewGetEvaluationsHandler(repo, nil),
	})
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func dispatchBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Response.FunctionResponse.ResponseBody.Text.Body
}

func TestDispatch_MissingTopLevelFields(t *testing.T) {
	s := newTestServer(t, newMemoryRepo())

	rec := doRequest(s, http.MethodPost, "/api/v1/dispatch", `{"function":"get-data-from-dynamodb"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var fault dispatchFault
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fault))
	assert.Equal(t, http.StatusBadRequest, fault.StatusCode)
	assert.Contains(t, fault.Body, "actionGroup")
}

func TestDispatch_UnknownFunctionIsSoftFailure(t *testing.T) {
	s := newTestServer(t, newMemoryRepo())

	rec := doRequest(s, http.MethodPost, "/api/v1/dispatch",
		`{"actionGroup":"evaluations","function":"delete-everything"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Function delete-everything is not implemented.", dispatchBody(t, rec))
}

func TestDispatch_MissingParameterIsSoftFailure(t *testing.T) {
	s := newTestServer(t, newMemoryRepo())

	rec := doRequest(s, http.MethodPost, "/api/v1/dispatch",
		`{"actionGroup":"evaluations","function":"get-data-from-dynamodb",
		  "parameters":[{"name":"students_id","value":"5"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Both students_id and period are required.", dispatchBody(t, rec))
}

func TestDispatch_RecordNotFound(t *testing.T) {
	s := newTestServer(t, newMemoryRepo())

	rec := doRequest(s, http.MethodPost, "/api/v1/dispatch",
		`{"actionGroup":"evaluations","function":"get-data-from-dynamodb",
		  "parameters":[{"name":"students_id","value":"5"},{"name":"period","value":"2025-01"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, dispatchBody(t, rec), "No evaluation data was found")
}

func TestDispatch_ReturnsStoredRecord(t *testing.T) {
	repo := newMemoryRepo()
	key := evaluation.RecordKey{StudentsID: "5", Period: "2025-01"}
	require.NoError(t, repo.UpsertAgentEvaluation(context.Background(), key, "doing great", "2025-01-31T10_00_00_000000"))

	s := newTestServer(t, repo)

	rec := doRequest(s, http.MethodPost, "/api/v1/dispatch",
		`{"actionGroup":"evaluations","function":"get-data-from-dynamodb","messageVersion":"1.0",
		  "parameters":[{"name":"students_id","value":"5"},{"name":"period","value":"2025-01"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "evaluations", resp.Response.ActionGroup)
	assert.Equal(t, FunctionGetEvaluationData, resp.Response.Function)
	assert.Equal(t, `"1.0"`, string(resp.MessageVersion), "messageVersion must round-trip unchanged")

	var data evaluationData
	require.NoError(t, json.Unmarshal([]byte(resp.Response.FunctionResponse.ResponseBody.Text.Body), &data))
	assert.Equal(t, "5", data.StudentsID)
	assert.Equal(t, "2025-01", data.Period)
	require.Len(t, data.Data, 1)
	assert.Equal(t, "doing great", data.Data[0].AgentEvaluation)
}

func TestDispatch_FirstMatchingParameterWins(t *testing.T) {
	repo := newMemoryRepo()
	key := evaluation.RecordKey{StudentsID: "1", Period: "2025-01"}
	require.NoError(t, repo.UpsertAgentEvaluation(context.Background(), key, "first", "2025-01-31T10_00_00_000000"))

	s := newTestServer(t, repo)

	rec := doRequest(s, http.MethodPost, "/api/v1/dispatch",
		`{"actionGroup":"evaluations","function":"get-data-from-dynamodb",
		  "parameters":[
		    {"name":"students_id","value":"1"},
		    {"name":"students_id","value":"999"},
		    {"name":"period","value":"2025-01"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var data evaluationData
	require.NoError(t, json.Unmarshal([]byte(dispatchBody(t, rec)), &data))
	assert.Equal(t, "1", data.StudentsID)
}

func TestDispatch_StoreFaultStaysGeneric(t *testing.T) {
	repo := newMemoryRepo()
	repo.fail = true
	s := newTestServer(t, repo)

	rec := doRequest(s, http.MethodPost, "/api/v1/dispatch",
		`{"actionGroup":"evaluations","function":"get-data-from-dynamodb",
		  "parameters":[{"name":"students_id","value":"5"},{"name":"period","value":"2025-01"}]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var fault dispatchFault
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fault))
	assert.Equal(t, "Internal server error", fault.Body)
	assert.NotContains(t, rec.Body.String(), "store query failed")
}
