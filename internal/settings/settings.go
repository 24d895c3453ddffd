// Package settings loads and saves the completion endpoint configuration.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danabrams/codegen/internal/kv"
)

// Storage keys. Each value is stored as an independent string entry.
const (
	KeyBaseURL = "jscodegen-api-base-url"
	KeyAPIKey  = "jscodegen-api-key"
	KeyModel   = "jscodegen-selected-model"
)

// Defaults applied when a key is absent.
const (
	DefaultBaseURL = "https://llmfoundry.straive.com/openai/v1"
	DefaultModel   = "gpt-4o-mini"
)

// ErrInvalidBaseURL is returned when saving an empty base URL.
var ErrInvalidBaseURL = errors.New("please enter a valid API base URL")

// APIConfig is the process-wide completion endpoint configuration.
type APIConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model"`
}

// HasKey reports whether an API key is configured.
func (c APIConfig) HasKey() bool {
	return c.APIKey != ""
}

// Masked returns a copy safe to display or log.
func (c APIConfig) Masked() APIConfig {
	if len(c.APIKey) > 8 {
		c.APIKey = c.APIKey[:4] + strings.Repeat("*", len(c.APIKey)-8) + c.APIKey[len(c.APIKey)-4:]
	} else if c.APIKey != "" {
		c.APIKey = "****"
	}
	return c
}

// Defaults holds the values used for absent keys.
type Defaults struct {
	BaseURL string
	Model   string
}

// Store persists APIConfig to a kv.Store.
type Store struct {
	kv       kv.Store
	defaults Defaults
}

// NewStore creates a settings store. Empty defaults fall back to the
// package defaults.
func NewStore(s kv.Store, defaults Defaults) *Store {
	if defaults.BaseURL == "" {
		defaults.BaseURL = DefaultBaseURL
	}
	if defaults.Model == "" {
		defaults.Model = DefaultModel
	}
	return &Store{kv: s, defaults: defaults}
}

// Load reads the configuration, applying defaults to absent entries.
func (s *Store) Load(ctx context.Context) (APIConfig, error) {
	var cfg APIConfig
	var err error

	if cfg.BaseURL, err = kv.GetOr(ctx, s.kv, KeyBaseURL, s.defaults.BaseURL); err != nil {
		return APIConfig{}, fmt.Errorf("load base url: %w", err)
	}
	if cfg.APIKey, err = kv.GetOr(ctx, s.kv, KeyAPIKey, ""); err != nil {
		return APIConfig{}, fmt.Errorf("load api key: %w", err)
	}
	if cfg.Model, err = kv.GetOr(ctx, s.kv, KeyModel, s.defaults.Model); err != nil {
		return APIConfig{}, fmt.Errorf("load model: %w", err)
	}
	return cfg, nil
}

// Save validates and persists base URL and API key together. The model is
// stored separately by SetModel.
func (s *Store) Save(ctx context.Context, baseURL, apiKey string) error {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return ErrInvalidBaseURL
	}

	err := s.kv.SetMany(ctx, map[string]string{
		KeyBaseURL: baseURL,
		KeyAPIKey:  strings.TrimSpace(apiKey),
	})
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// SetModel persists the selected model.
func (s *Store) SetModel(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model is required")
	}
	if err := s.kv.Set(ctx, KeyModel, model); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}
