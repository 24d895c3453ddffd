package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danabrams/codegen/internal/runner"
)

type runRequest struct {
	Code string `json:"code"`
}

type runResponse struct {
	Console     []string          `json:"console"`
	ReturnValue *string           `json:"return_value,omitempty"`
	Error       *runner.ExecError `json:"error,omitempty"`
	Output      string            `json:"output"`
}

// handleRun executes code and returns what it printed, returned or threw.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "code execution is not available")
		return
	}

	var req runRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "code is required")
		return
	}

	res, err := s.runner.Run(r.Context(), req.Code)
	if errors.Is(err, runner.ErrTimeout) {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeInvalidInput, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	resp := runResponse{
		Console: res.ConsoleOutput,
		Error:   res.Error,
		Output:  res.Format(),
	}
	if resp.Console == nil {
		resp.Console = []string{}
	}
	if res.HasReturnValue {
		resp.ReturnValue = &res.ReturnValue
	}
	writeJSON(w, http.StatusOK, resp)
}
