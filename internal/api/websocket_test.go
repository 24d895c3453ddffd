package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danabrams/codegen/internal/manager"
	"github.com/danabrams/codegen/internal/testutil"
)

type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialEvents(t *testing.T, ts *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("failed to connect: %v (response: %v)", err, resp)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if msg.Type == eventType {
			return msg
		}
	}
}

func authHeader() http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer test-key")
	return header
}

func TestEventsWSConnection(t *testing.T) {
	srv := setupTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialEvents(t, ts, authHeader())

	var view manager.View
	msg := readUntil(t, conn, EventSessionActivated)
	if err := json.Unmarshal(msg.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.ID != srv.manager.ActiveID() {
		t.Errorf("initial view = %s, want active %s", view.ID, srv.manager.ActiveID())
	}

	var list []manager.Summary
	msg = readUntil(t, conn, EventSessionsChanged)
	if err := json.Unmarshal(msg.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("initial list = %d sessions, want 1", len(list))
	}

	testutil.WaitFor(t, time.Second, func() bool { return srv.hub.ClientCount() == 1 })
}

func TestEventsWSUnauthorized(t *testing.T) {
	srv := setupTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"

	// No auth
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Error("expected connection to fail without auth")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}

	// Wrong auth
	header := http.Header{}
	header.Set("Authorization", "Bearer wrong-key")
	_, resp, err = websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Error("expected connection to fail with wrong auth")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}

	// Token in query string
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=test-key", nil)
	if err != nil {
		t.Fatalf("expected query token to be accepted: %v", err)
	}
	conn.Close()
}

func TestEventsWSTurnEvents(t *testing.T) {
	srv := setupTestServer(t, testutil.Step{Reply: testutil.Reply("Adds numbers.", "1 + 2")})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialEvents(t, ts, authHeader())
	readUntil(t, conn, EventSessionsChanged)
	testutil.WaitFor(t, time.Second, func() bool { return srv.hub.ClientCount() == 1 })

	id := srv.manager.ActiveID()
	w := doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "add"}, auth)
	if w.Code != http.StatusOK {
		t.Fatalf("submit returned %d: %s", w.Code, w.Body.String())
	}

	var started TurnEvent
	if err := json.Unmarshal(readUntil(t, conn, EventTurnStarted).Data, &started); err != nil {
		t.Fatal(err)
	}
	if started.SessionID != id || started.Prompt != "add" {
		t.Errorf("started = %+v", started)
	}

	var committed manager.TurnResult
	if err := json.Unmarshal(readUntil(t, conn, EventTurnCommitted).Data, &committed); err != nil {
		t.Fatal(err)
	}
	if committed.Code != "1 + 2" || committed.Explanation != "Adds numbers." {
		t.Errorf("committed = %+v", committed)
	}
}

func TestEventsWSTurnFailed(t *testing.T) {
	srv := setupTestServer(t, testutil.Step{Status: http.StatusInternalServerError})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialEvents(t, ts, authHeader())
	readUntil(t, conn, EventSessionsChanged)
	testutil.WaitFor(t, time.Second, func() bool { return srv.hub.ClientCount() == 1 })

	id := srv.manager.ActiveID()
	doRequest(srv.Server, "POST", "/api/sessions/"+id+"/turns", submitTurnRequest{Prompt: "x"}, auth)

	var failed TurnEvent
	if err := json.Unmarshal(readUntil(t, conn, EventTurnFailed).Data, &failed); err != nil {
		t.Fatal(err)
	}
	if failed.Message != "API call failed with status: 500" {
		t.Errorf("failed message = %q", failed.Message)
	}
}

func TestHubStopsClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	if !hub.add(client) {
		t.Fatal("add failed on running hub")
	}
	hub.TurnStarted("chat_x", "p")
	msg := testutil.WaitForEvent(t, client.send, time.Second)
	if !strings.Contains(string(msg), EventTurnStarted) {
		t.Errorf("message = %s", msg)
	}

	cancel()
	<-done

	if _, ok := <-client.send; ok {
		t.Error("client send channel should be closed on stop")
	}
	if hub.add(&Client{hub: hub, send: make(chan []byte)}) {
		t.Error("add should fail after stop")
	}

	// neither call may block once the hub has stopped
	hub.remove(client)
	hub.TurnStarted("chat_x", "p")
}
