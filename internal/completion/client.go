// Package completion sends chat-completion requests and applies the
// single-retry policy for transport failures.
package completion

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/danabrams/codegen/internal/conversation"
	"github.com/danabrams/codegen/internal/logging"
	"github.com/danabrams/codegen/internal/metrics"
	"github.com/danabrams/codegen/internal/settings"
)

// Attempt names, also used as metric labels.
const (
	AttemptPrimary  = "primary"
	AttemptFallback = "fallback"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// request is the body sent to {baseURL}/chat/completions.
type request struct {
	Model    string                       `json:"model"`
	Messages []conversation.PromptMessage `json:"messages"`
}

type response struct {
	Choices []struct {
		Message conversation.PromptMessage `json:"message"`
	} `json:"choices"`
}

// attemptConfig is one of the two request configurations.
type attemptConfig struct {
	name      string
	transport http.RoundTripper
	header    http.Header
	redirects bool
}

// Client talks to an OpenAI-compatible completion endpoint.
type Client struct {
	primary  attemptConfig
	fallback attemptConfig
	jar      http.CookieJar
	timeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTransports replaces the primary and fallback round trippers.
func WithTransports(primary, fallback http.RoundTripper) Option {
	return func(c *Client) {
		c.primary.transport = primary
		c.fallback.transport = fallback
	}
}

// WithJar sets the cookie jar used for ambient credentials when no API key
// is configured.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) { c.jar = jar }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a client with the default transports.
//
// The primary attempt keeps connections alive and negotiates HTTP/2. The
// fallback disables keep-alive and HTTP/2, relaxes caching, and follows
// redirects without sending a Referer.
func NewClient(opts ...Option) *Client {
	base := http.DefaultTransport.(*http.Transport)

	primary := base.Clone()
	primary.ForceAttemptHTTP2 = true

	fallback := base.Clone()
	fallback.DisableKeepAlives = true
	fallback.ForceAttemptHTTP2 = false
	fallback.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}

	jar, _ := cookiejar.New(nil)

	c := &Client{
		primary: attemptConfig{
			name:      AttemptPrimary,
			transport: primary,
			header: http.Header{
				"Cache-Control": {"no-store"},
			},
		},
		fallback: attemptConfig{
			name:      AttemptFallback,
			transport: fallback,
			header: http.Header{
				"Cache-Control": {"no-cache"},
			},
			redirects: true,
		},
		jar:     jar,
		timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends messages to cfg's endpoint and returns the assistant
// message unchanged. It fails with *APIError or *NetworkError.
func (c *Client) Complete(ctx context.Context, messages []conversation.PromptMessage, cfg settings.APIConfig) (*conversation.PromptMessage, error) {
	body, err := json.Marshal(request{Model: cfg.Model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"

	msg, err := c.send(ctx, c.primary, url, body, cfg)
	if ctx.Err() != nil || Decide(err, 1) != RetryOnce {
		return msg, err
	}

	logging.Warn().Err(err).Str("url", url).Msg("completion: retrying with fallback request")

	msg, retryErr := c.send(ctx, c.fallback, url, body, cfg)
	if retryErr != nil {
		logging.Error().Err(retryErr).Str("url", url).Msg("completion: retry failed")
		return nil, &NetworkError{Err: retryErr, Attempts: MaxAttempts}
	}
	return msg, nil
}

// send performs one attempt and classifies its failure.
func (c *Client) send(ctx context.Context, ac attemptConfig, url string, body []byte, cfg settings.APIConfig) (*conversation.PromptMessage, error) {
	msg, err := c.do(ctx, ac, url, body, cfg)
	metrics.RecordAttempt(ac.name, outcome(err))
	return msg, err
}

func (c *Client) do(ctx context.Context, ac attemptConfig, url string, body []byte, cfg settings.APIConfig) (*conversation.PromptMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range ac.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Transport: ac.transport,
		Timeout:   c.timeout,
	}
	// Bearer key and ambient cookies are mutually exclusive.
	if cfg.HasKey() {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	} else {
		client.Jar = c.jar
	}
	if ac.redirects {
		client.CheckRedirect = followWithoutReferrer
	} else {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err, Attempts: 1}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response: %w", err), Attempts: 1}
	}

	var parsed response
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: "malformed JSON response"}
	}
	if len(parsed.Choices) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: "response contained no choices"}
	}

	msg := parsed.Choices[0].Message
	return &msg, nil
}

func followWithoutReferrer(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	req.Header.Del("Referer")
	return nil
}

func outcome(err error) string {
	switch err.(type) {
	case nil:
		return metrics.OutcomeOK
	case *NetworkError:
		return metrics.OutcomeNetworkError
	default:
		return metrics.OutcomeAPIError
	}
}
