package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eval-hub/student-evaluation-hub/internal/application/query"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
)

// ══════════════════════════════════════════════════════════════════════════════
// FUNCTION DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// FunctionGetEvaluationData is the only function the dispatcher implements.
const FunctionGetEvaluationData = "get-data-from-dynamodb"

// dispatchRequest is the function-call payload sent by the agent framework.
type dispatchRequest struct {
	ActionGroup    string              `json:"actionGroup"`
	Function       string              `json:"function"`
	MessageVersion json.RawMessage     `json:"messageVersion"`
	Parameters     []dispatchParameter `json:"parameters"`
}

type dispatchParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// dispatchResponse is the fixed response envelope the agent framework expects.
type dispatchResponse struct {
	Response       actionResponse  `json:"response"`
	MessageVersion json.RawMessage `json:"messageVersion"`
}

type actionResponse struct {
	ActionGroup      string           `json:"actionGroup"`
	Function         string           `json:"function"`
	FunctionResponse functionResponse `json:"functionResponse"`
}

type functionResponse struct {
	ResponseBody responseBody `json:"responseBody"`
}

type responseBody struct {
	Text textBody `json:"TEXT"`
}

type textBody struct {
	Body string `json:"body"`
}

// dispatchFault mirrors the error envelope of the original dispatcher.
type dispatchFault struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// evaluationData wraps matched records with the requested key, so the agent
// can relate the answer back to its own function call.
type evaluationData struct {
	StudentsID string               `json:"students_id"`
	Period     string               `json:"period"`
	Data       []*evaluation.Record `json:"data"`
}

// firstParameter returns the value of the first parameter with the given
// name, or "" when absent.
func firstParameter(params []dispatchParameter, name string) string {
	for _, p := range params {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// handleDispatch executes a structured function call from the agent.
// Unknown functions and missing function parameters produce soft text
// responses inside a normal envelope; only a malformed request or an
// internal fault produces an error status.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error("malformed dispatch request", "error", err)
		writeRawJSON(w, http.StatusBadRequest, dispatchFault{
			StatusCode: http.StatusBadRequest,
			Body:       "Error: malformed request body",
		})
		return
	}

	if req.ActionGroup == "" || req.Function == "" {
		s.logger.Error("dispatch request missing required field",
			"action_group", req.ActionGroup,
			"function", req.Function,
		)
		writeRawJSON(w, http.StatusBadRequest, dispatchFault{
			StatusCode: http.StatusBadRequest,
			Body:       "Error: actionGroup and function are required",
		})
		return
	}

	if len(req.MessageVersion) == 0 {
		req.MessageVersion = json.RawMessage("1")
	}

	body, err := s.dispatchFunction(r, req)
	if err != nil {
		// Store failures stay generic toward the agent framework.
		s.logger.Error("dispatch failed",
			"function", req.Function,
			"error", err,
		)
		writeRawJSON(w, http.StatusInternalServerError, dispatchFault{
			StatusCode: http.StatusInternalServerError,
			Body:       "Internal server error",
		})
		return
	}

	resp := dispatchResponse{
		Response: actionResponse{
			ActionGroup: req.ActionGroup,
			Function:    req.Function,
			FunctionResponse: functionResponse{
				ResponseBody: responseBody{
					Text: textBody{Body: body},
				},
			},
		},
		MessageVersion: req.MessageVersion,
	}

	s.logger.Info("dispatch handled", "function", req.Function)
	writeRawJSON(w, http.StatusOK, resp)
}

// dispatchFunction routes the function call and returns the text body for
// the response envelope.
func (s *Server) dispatchFunction(r *http.Request, req dispatchRequest) (string, error) {
	if req.Function != FunctionGetEvaluationData {
		return "Function " + req.Function + " is not implemented.", nil
	}

	studentsID := firstParameter(req.Parameters, "students_id")
	period := firstParameter(req.Parameters, "period")

	if studentsID == "" || period == "" {
		return "Both students_id and period are required.", nil
	}

	rec, err := s.deps.GetEvaluationsHandler.HandleGet(r.Context(), query.GetEvaluationQuery{
		StudentsID: studentsID,
		Period:     period,
	})
	if err != nil {
		if errors.Is(err, evaluation.ErrRecordNotFound) {
			return "No evaluation data was found for the given students_id and period.", nil
		}
		return "", err
	}

	data, err := json.Marshal(evaluationData{
		StudentsID: studentsID,
		Period:     period,
		Data:       []*evaluation.Record{rec},
	})
	if err != nil {
		return "", err
	}

	return string(data), nil
}
