package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danabrams/codegen/internal/settings"
)

// settingsResponse is the API configuration with the key masked.
type settingsResponse struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	HasKey  bool   `json:"has_key"`
	Model   string `json:"model"`
}

func toSettingsResponse(cfg settings.APIConfig) settingsResponse {
	masked := cfg.Masked()
	return settingsResponse{
		BaseURL: masked.BaseURL,
		APIKey:  masked.APIKey,
		HasKey:  cfg.HasKey(),
		Model:   masked.Model,
	}
}

// handleGetSettings returns the current API configuration.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSettingsResponse(s.manager.Settings()))
}

// putSettingsRequest updates the API configuration. Omitted fields keep
// their current value; an empty api_key clears the key.
type putSettingsRequest struct {
	BaseURL *string `json:"base_url,omitempty"`
	APIKey  *string `json:"api_key,omitempty"`
	Model   *string `json:"model,omitempty"`
}

// handlePutSettings saves the API configuration.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req putSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid JSON body")
		return
	}

	current := s.manager.Settings()
	if req.BaseURL != nil || req.APIKey != nil {
		baseURL, apiKey := current.BaseURL, current.APIKey
		if req.BaseURL != nil {
			baseURL = *req.BaseURL
		}
		if req.APIKey != nil {
			apiKey = *req.APIKey
		}

		err := s.manager.SaveSettings(r.Context(), baseURL, apiKey)
		if errors.Is(err, settings.ErrInvalidBaseURL) {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to save settings")
			return
		}
	}

	if req.Model != nil {
		if strings.TrimSpace(*req.Model) == "" {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidInput, "model is required")
			return
		}
		if err := s.manager.SetModel(r.Context(), *req.Model); err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to save model")
			return
		}
	}

	writeJSON(w, http.StatusOK, toSettingsResponse(s.manager.Settings()))
}
