package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/eval-hub/student-evaluation-hub/internal/application/command"
	"github.com/eval-hub/student-evaluation-hub/internal/application/query"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    "Student Evaluation Hub API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":      "/health",
			"dispatch":    "/api/v1/dispatch",
			"batch":       "/api/v1/batch/evaluate",
			"evaluations": "/api/v1/evaluations",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH TRIGGER
// ══════════════════════════════════════════════════════════════════════════════

// batchRequest is the batch trigger payload. Historic trigger events carry
// every field as a string, so loop_count accepts both forms.
type batchRequest struct {
	StudentsID string      `json:"students_id"`
	Period     string      `json:"period"`
	LoopCount  flexibleInt `json:"loop_count"`
}

// flexibleInt unmarshals from a JSON number or a numeric string.
type flexibleInt struct {
	Value int
	Set   bool
}

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		f.Value = n
		f.Set = true
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("loop_count must be a number or a numeric string")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("loop_count must be numeric, got %q", s)
	}
	f.Value = n
	f.Set = true
	return nil
}

// batchEnvelope mirrors the original trigger's response contract: the
// status code appears in the body as well as on the wire.
type batchEnvelope struct {
	StatusCode int       `json:"statusCode"`
	Body       batchBody `json:"body"`
}

type batchBody struct {
	Message string                     `json:"message"`
	Results []command.ProcessedStudent `json:"results,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// handleEvaluateBatch runs a full evaluation batch synchronously and
// reports the outcome.
func (s *Server) handleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeRawJSON(w, http.StatusBadRequest, batchEnvelope{
				StatusCode: http.StatusBadRequest,
				Body:       batchBody{Message: "Invalid request", Error: err.Error()},
			})
			return
		}
	}

	cmd := command.EvaluateBatchCommand{
		StudentsID: req.StudentsID,
		Period:     req.Period,
		LoopCount:  command.DefaultLoopCount,
	}
	if req.LoopCount.Set {
		cmd.LoopCount = req.LoopCount.Value
	}

	result := s.deps.EvaluateBatchHandler.Handle(r.Context(), cmd)

	if !result.Succeeded {
		status := http.StatusInternalServerError
		if errors.Is(result.Err, shared.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		writeRawJSON(w, status, batchEnvelope{
			StatusCode: status,
			Body: batchBody{
				Message: "Batch evaluation failed",
				Error:   result.ErrorMessage,
			},
		})
		return
	}

	writeRawJSON(w, http.StatusOK, batchEnvelope{
		StatusCode: http.StatusOK,
		Body: batchBody{
			Message: "Successfully processed all students",
			Results: result.Results,
		},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW SURFACE
// ══════════════════════════════════════════════════════════════════════════════

// handleListEvaluations returns all records for a period.
func (s *Server) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")

	records, err := s.deps.GetEvaluationsHandler.HandleList(r.Context(), query.ListEvaluationsQuery{
		Period: period,
	})
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	if records == nil {
		records = []*evaluation.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetEvaluation returns a single record.
func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.GetEvaluationsHandler.HandleGet(r.Context(), query.GetEvaluationQuery{
		StudentsID: r.PathValue("id"),
		Period:     r.URL.Query().Get("period"),
	})
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// reviewRequest is the payload for recording a teacher review.
type reviewRequest struct {
	Period            string `json:"period"`
	TeacherEvaluation string `json:"teacher_evaluation"`
}

// handlePutReview records a teacher's review for a student and period.
func (s *Server) handlePutReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	err := s.deps.ReviewEvaluationHandler.Handle(r.Context(), command.ReviewEvaluationCommand{
		StudentsID: r.PathValue("id"),
		Period:     req.Period,
		Text:       req.TeacherEvaluation,
	})
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// writeQueryError maps application errors to HTTP statuses.
func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, evaluation.ErrRecordNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "evaluation record not found")
	default:
		s.logger.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
