package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danabrams/codegen/internal/manager"
	"github.com/danabrams/codegen/internal/runner"
	"github.com/danabrams/codegen/internal/settings"
	"github.com/danabrams/codegen/internal/testutil"
)

const auth = "Bearer test-key"

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func TestSessionLifecycle(t *testing.T) {
	srv := setupTestServer(t)

	list := decode[[]manager.Summary](t, doRequest(srv.Server, "GET", "/api/sessions", nil, auth))
	require.Len(t, list, 1)
	first := list[0].ID
	assert.True(t, list[0].Active)

	w := doRequest(srv.Server, "POST", "/api/sessions", nil, auth)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[manager.View](t, w)
	assert.NotEqual(t, first, created.ID)
	assert.Empty(t, created.Turns)

	list = decode[[]manager.Summary](t, doRequest(srv.Server, "GET", "/api/sessions", nil, auth))
	require.Len(t, list, 2)
	assert.Equal(t, created.ID, list[0].ID, "new session is most recent")
	assert.True(t, list[0].Active)

	w = doRequest(srv.Server, "POST", "/api/sessions/"+first+"/activate", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first, srv.manager.ActiveID())

	w = doRequest(srv.Server, "GET", "/api/sessions/"+created.ID, nil, auth)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv.Server, "DELETE", "/api/sessions/"+created.ID, nil, auth)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(srv.Server, "DELETE", "/api/sessions/"+first, nil, auth)
	assert.Equal(t, http.StatusConflict, w.Code, "last session cannot be deleted")

	w = doRequest(srv.Server, "GET", "/api/sessions/"+created.ID, nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(srv.Server, "POST", "/api/sessions/chat_nope/activate", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doRequest(srv.Server, "DELETE", "/api/sessions/chat_nope", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitTurn(t *testing.T) {
	srv := setupTestServer(t, testutil.Step{Reply: testutil.Reply("Prints a greeting.", `console.log("hi");`)})
	id := srv.manager.ActiveID()

	w := doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "say hi"}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode[manager.TurnResult](t, w)
	assert.Equal(t, id, res.SessionID)
	assert.Equal(t, "Prints a greeting.", res.Explanation)
	assert.Equal(t, `console.log("hi");`, res.Code)
	assert.Equal(t, "say hi", res.Title)

	reqs := srv.endpoint.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v1/chat/completions", reqs[0].Path)
	assert.Equal(t, settings.DefaultModel, reqs[0].Model)
	assert.Empty(t, reqs[0].Authorization, "no key configured")
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, "system", reqs[0].Messages[0].Role)
	assert.Equal(t, "say hi", reqs[0].Messages[1].Content)

	view := decode[manager.View](t, doRequest(srv.Server, "GET", "/api/sessions/"+id, nil, auth))
	assert.Equal(t, `console.log("hi");`, view.Code)
	require.Len(t, view.Turns, 1)
	assert.Equal(t, manager.TurnView{Prompt: "say hi", Explanation: "Prints a greeting."}, view.Turns[0])
}

func TestSubmitTurnWithFile(t *testing.T) {
	srv := setupTestServer(t)
	id := srv.manager.ActiveID()

	body := submitTurnRequest{Prompt: "parse it", File: &attachment{Name: "data.csv", Content: "a,b"}}
	w := doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", body, auth)
	require.Equal(t, http.StatusOK, w.Code)

	reqs := srv.endpoint.Requests()
	require.Len(t, reqs, 1)
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	assert.Equal(t, "[File: data.csv]\na,b\n\nparse it", last.Content)
}

func TestSubmitTurnErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv := setupTestServer(t, testutil.Step{Status: http.StatusUnauthorized, Body: "bad key"})
		id := srv.manager.ActiveID()

		w := doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "x"}, auth)
		require.Equal(t, http.StatusBadGateway, w.Code)
		resp := decode[ErrorResponse](t, w)
		assert.Equal(t, ErrCodeAPIError, resp.Error.Code)
		assert.Equal(t, "API call failed with status: 401", resp.Error.Message)
		assert.Equal(t, 1, srv.endpoint.RequestCount(), "api errors are not retried")

		view := decode[manager.View](t, doRequest(srv.Server, "GET", "/api/sessions/"+id, nil, auth))
		assert.Empty(t, view.Turns)
	})

	t.Run("network error", func(t *testing.T) {
		srv := setupTestServer(t, testutil.Step{Drop: true})
		id := srv.manager.ActiveID()

		w := doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "x"}, auth)
		require.Equal(t, http.StatusBadGateway, w.Code)
		resp := decode[ErrorResponse](t, w)
		assert.Equal(t, ErrCodeNetworkError, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "Technical error")
		assert.Equal(t, 2, srv.endpoint.RequestCount(), "exactly one retry")
	})

	t.Run("retry succeeds", func(t *testing.T) {
		srv := setupTestServer(t, testutil.Step{Drop: true}, testutil.Step{Reply: "Recovered."})
		id := srv.manager.ActiveID()

		w := doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "x"}, auth)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Recovered.", decode[manager.TurnResult](t, w).Explanation)
	})

	t.Run("validation", func(t *testing.T) {
		srv := setupTestServer(t)
		id := srv.manager.ActiveID()

		w := doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "  "}, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doRequest(srv.Server, "POST", "/api/sessions/chat_nope/turns", submitTurnRequest{Prompt: "x"}, auth)
		assert.Equal(t, http.StatusNotFound, w.Code)

		req := httptest.NewRequest("POST", "/api/sessions/"+id+"/turns", strings.NewReader("{"))
		req.Header.Set("Authorization", auth)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		assert.Zero(t, srv.endpoint.RequestCount())
	})
}

func TestSubmitTurnInFlight(t *testing.T) {
	gate := make(chan struct{})
	srv := setupTestServer(t, testutil.Step{Gate: gate, Reply: "Slow."})
	id := srv.manager.ActiveID()

	var wg sync.WaitGroup
	var first *httptest.ResponseRecorder
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "slow"}, auth)
	}()
	testutil.WaitFor(t, 2*time.Second, func() bool { return srv.endpoint.RequestCount() == 1 })

	w := doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "again"}, auth)
	assert.Equal(t, http.StatusConflict, w.Code)

	// another session is not blocked
	other := decode[manager.View](t, doRequest(srv.Server, "POST", "/api/sessions", nil, auth))
	srv.endpoint.Script(testutil.Step{Reply: "Fast."})
	w = doRequest(srv.Server, "POST", "/api/sessions/"+other.ID+"/turns", submitTurnRequest{Prompt: "fast"}, auth)
	assert.Equal(t, http.StatusOK, w.Code)

	close(gate)
	wg.Wait()
	require.Equal(t, http.StatusOK, first.Code)

	view := decode[manager.View](t, doRequest(srv.Server, "GET", "/api/sessions/"+id, nil, auth))
	require.Len(t, view.Turns, 1)
	assert.Equal(t, "slow", view.Turns[0].Prompt, "committed to the originating session")
}

func TestSubmitTurnSurvivesClientDisconnect(t *testing.T) {
	gate := make(chan struct{})
	srv := setupTestServer(t, testutil.Step{Gate: gate, Reply: testutil.Reply("Still here.", "done()")})
	id := srv.manager.ActiveID()

	body, _ := json.Marshal(submitTurnRequest{Prompt: "keep going"})
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("POST", "/api/sessions/"+id+"/turns", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Handler().ServeHTTP(w, req)
	}()
	testutil.WaitFor(t, 2*time.Second, func() bool { return srv.endpoint.RequestCount() == 1 })

	cancel()
	close(gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return")
	}
	assert.Zero(t, w.Body.Len(), "nothing is written to a departed client")
	assert.Equal(t, 1, srv.endpoint.RequestCount())

	view := decode[manager.View](t, doRequest(srv.Server, "GET", "/api/sessions/"+id, nil, auth))
	require.Len(t, view.Turns, 1)
	assert.Equal(t, "keep going", view.Turns[0].Prompt)
	assert.Equal(t, "done()", view.Code)
}

func TestSubmitTurnRateLimited(t *testing.T) {
	srv := setupTestServerWithConfig(t, Config{APIKey: "test-key", TurnsPerSecond: 0.001, TurnBurst: 1})
	id := srv.manager.ActiveID()

	w := doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "a"}, auth)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "b"}, auth)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// other routes are not limited
	w = doRequest(srv.Server, "GET", "/api/sessions", nil, auth)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSettings(t *testing.T) {
	srv := setupTestServer(t)

	got := decode[settingsResponse](t, doRequest(srv.Server, "GET", "/api/settings", nil, auth))
	assert.Equal(t, srv.endpoint.BaseURL(), got.BaseURL)
	assert.False(t, got.HasKey)
	assert.Equal(t, settings.DefaultModel, got.Model)

	key := "sk-abcdefghijklmnop"
	w := doRequest(srv.Server, "PUT", "/api/settings", map[string]string{"api_key": key, "model": "gpt-4o"}, auth)
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[settingsResponse](t, w)
	assert.True(t, got.HasKey)
	assert.NotContains(t, got.APIKey, "efghijkl")
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, srv.endpoint.BaseURL(), got.BaseURL, "omitted base_url is kept")

	// the next turn uses bearer auth and the new model
	w = doRequest(srv.Server, "POST", "/api/sessions/"+srv.manager.ActiveID()+"/turns", submitTurnRequest{Prompt: "x"}, auth)
	require.Equal(t, http.StatusOK, w.Code)
	reqs := srv.endpoint.Requests()
	assert.Equal(t, "Bearer "+key, reqs[len(reqs)-1].Authorization)
	assert.Equal(t, "gpt-4o", reqs[len(reqs)-1].Model)

	w = doRequest(srv.Server, "PUT", "/api/settings", map[string]string{"base_url": "  "}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(srv.Server, "PUT", "/api/settings", map[string]string{"model": ""}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandler(t *testing.T) {
	srv := setupTestServer(t)
	value := "3"
	srv.runner = &fakeRunner{res: &runner.Result{ConsoleOutput: []string{"a"}, ReturnValue: value, HasReturnValue: true}}

	w := doRequest(srv.Server, "POST", "/api/run", runRequest{Code: "console.log('a'); 1+2"}, auth)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[runResponse](t, w)
	assert.Equal(t, []string{"a"}, resp.Console)
	require.NotNil(t, resp.ReturnValue)
	assert.Equal(t, "3", *resp.ReturnValue)
	assert.Equal(t, "Console Output:\na\n\nReturn Value:\n3", resp.Output)

	w = doRequest(srv.Server, "POST", "/api/run", runRequest{}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	srv.runner = &fakeRunner{err: runner.ErrTimeout}
	w = doRequest(srv.Server, "POST", "/api/run", runRequest{Code: "while(true){}"}, auth)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	srv.runner = nil
	w = doRequest(srv.Server, "POST", "/api/run", runRequest{Code: "1"}, auth)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
