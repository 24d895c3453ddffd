package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Step is one scripted response of a MockEndpoint.
type Step struct {
	// Reply is the assistant content returned with status 200.
	Reply string
	// Status, when non-zero and not 200, is returned with Body instead.
	Status int
	Body   string
	// Drop closes the connection without a response.
	Drop bool
	// Delay waits before responding.
	Delay time.Duration
	// Gate, when set, blocks the response until it is closed.
	Gate chan struct{}
}

// RecordedRequest is a request received by a MockEndpoint.
type RecordedRequest struct {
	Path          string
	Authorization string
	Cookie        string
	CacheControl  string
	Model         string
	Messages      []RecordedMessage
}

// RecordedMessage is one message of a recorded request body.
type RecordedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MockEndpoint simulates an OpenAI-compatible chat completions endpoint.
// It answers with scripted steps in order; once the script is exhausted the
// last step repeats.
type MockEndpoint struct {
	*httptest.Server

	mu       sync.Mutex
	steps    []Step
	stepIdx  int
	requests []RecordedRequest
}

// NewMockEndpoint starts a mock endpoint. It is closed when the test
// completes.
func NewMockEndpoint(t *testing.T, steps ...Step) *MockEndpoint {
	t.Helper()
	if len(steps) == 0 {
		steps = []Step{{Reply: Reply("Done.", "console.log('ok');")}}
	}

	m := &MockEndpoint{steps: steps}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// BaseURL returns the value to configure as the API base URL.
func (m *MockEndpoint) BaseURL() string {
	return m.URL + "/v1"
}

// Script replaces the remaining steps.
func (m *MockEndpoint) Script(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = steps
	m.stepIdx = 0
}

// Requests returns the requests received so far.
func (m *MockEndpoint) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests received so far.
func (m *MockEndpoint) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockEndpoint) next() Step {
	step := m.steps[m.stepIdx]
	if m.stepIdx < len(m.steps)-1 {
		m.stepIdx++
	}
	return step
}

func (m *MockEndpoint) serve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model    string            `json:"model"`
		Messages []RecordedMessage `json:"messages"`
	}
	raw, _ := io.ReadAll(r.Body)
	json.Unmarshal(raw, &body)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Cookie:        r.Header.Get("Cookie"),
		CacheControl:  r.Header.Get("Cache-Control"),
		Model:         body.Model,
		Messages:      body.Messages,
	})
	step := m.next()
	m.mu.Unlock()

	if step.Gate != nil {
		<-step.Gate
	}
	if step.Delay > 0 {
		time.Sleep(step.Delay)
	}

	if step.Drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("mock endpoint: hijacking not supported")
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	if step.Status != 0 && step.Status != http.StatusOK {
		http.Error(w, step.Body, step.Status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": step.Reply}},
		},
	})
}

// Reply formats an assistant reply with an explanation and a JavaScript
// code block.
func Reply(explanation, code string) string {
	return fmt.Sprintf("%s\n\n```javascript\n%s\n```", explanation, code)
}
