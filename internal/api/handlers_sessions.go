package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danabrams/codegen/internal/completion"
	"github.com/danabrams/codegen/internal/logging"
	"github.com/danabrams/codegen/internal/manager"
	"github.com/danabrams/codegen/internal/session"
)

// handleListSessions returns the most recently used sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

// handleCreateSession creates a session and makes it active.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.NewSession(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("create session")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// handleGetSession returns a session's code and replayed turns.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.View(chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleActivateSession makes a session active.
func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Switch(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("activate session")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to activate session")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDeleteSession deletes a session. The last session cannot be deleted.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.manager.Delete(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case errors.Is(err, manager.ErrLastSession):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case err != nil:
		logging.Error().Err(err).Msg("delete session")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to delete session")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// attachment is a file whose contents are prefixed to the prompt.
type attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// submitTurnRequest is the request body for submitting a turn.
type submitTurnRequest struct {
	Prompt string      `json:"prompt"`
	File   *attachment `json:"file,omitempty"`
}

// handleSubmitTurn runs a turn on the session in the path and answers with
// the committed result.
func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var req submitTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid JSON body")
		return
	}

	prompt := req.Prompt
	if req.File != nil && req.File.Name != "" {
		prompt = manager.AttachFile(req.File.Name, req.File.Content, prompt)
	}

	result, err := s.manager.SubmitTo(r.Context(), chi.URLParam(r, "id"), prompt)
	if r.Context().Err() != nil {
		// the turn still committed or failed on its own; nobody is listening
		logging.Info().Str("request_id", RequestID(r.Context())).Msg("client left before turn finished")
		return
	}
	if err != nil {
		s.writeTurnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *completion.APIError
	var netErr *completion.NetworkError

	switch {
	case errors.Is(err, manager.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "prompt is required")
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case errors.Is(err, manager.ErrTurnInFlight):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, ErrCodeAPIError, manager.UserMessage(err))
	case errors.As(err, &netErr):
		writeError(w, http.StatusBadGateway, ErrCodeNetworkError, manager.UserMessage(err))
	default:
		logging.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("submit turn")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to complete turn")
	}
}
