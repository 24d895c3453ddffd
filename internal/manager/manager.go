// Package manager orchestrates turns over a set of sessions: it builds the
// request context, calls the completion endpoint, commits the result and
// tracks which session is active.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danabrams/codegen/internal/conversation"
	"github.com/danabrams/codegen/internal/logging"
	"github.com/danabrams/codegen/internal/metrics"
	"github.com/danabrams/codegen/internal/parser"
	"github.com/danabrams/codegen/internal/session"
	"github.com/danabrams/codegen/internal/settings"
)

// ListLimit is the number of sessions returned by List.
const ListLimit = 5

// Completer sends a built context to the completion endpoint.
type Completer interface {
	Complete(ctx context.Context, messages []conversation.PromptMessage, cfg settings.APIConfig) (*conversation.PromptMessage, error)
}

// Manager owns the session store and the active session id. All mutation of
// sessions goes through its methods.
type Manager struct {
	mu       sync.Mutex
	store    *session.Store
	settings *settings.Store
	api      settings.APIConfig
	client   Completer
	builder  *conversation.PromptBuilder
	renderer Renderer
	now      func() time.Time

	activeID string
	inFlight map[string]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithRenderer sets the display sink.
func WithRenderer(r Renderer) Option {
	return func(m *Manager) { m.renderer = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a manager. Call Init before use.
func New(store *session.Store, cfg *settings.Store, client Completer, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		settings: cfg,
		client:   client,
		builder:  conversation.NewPromptBuilder(conversation.DefaultPromptConfig()),
		renderer: NopRenderer{},
		now:      conversation.Now,
		inFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads settings and sessions, then activates the most recently used
// session, creating one if none exist.
func (m *Manager) Init(ctx context.Context) error {
	api, err := m.settings.Load(ctx)
	if err != nil {
		return err
	}
	if err := m.store.Load(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.api = api
	m.mu.Unlock()

	logging.Info().
		Int("sessions", m.store.Len()).
		Str("base_url", api.BaseURL).
		Str("model", api.Model).
		Bool("api_key", api.HasKey()).
		Msg("manager initialized")

	latest, ok := m.store.MostRecent()
	if !ok {
		_, err := m.NewSession(ctx)
		return err
	}
	_, err = m.Switch(ctx, latest.ID)
	return err
}

// ActiveID returns the id of the active session.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Settings returns the current API configuration.
func (m *Manager) Settings() settings.APIConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.api
}

// SaveSettings persists a new base URL and API key and applies them to
// subsequent turns. An empty key selects cookie credentials.
func (m *Manager) SaveSettings(ctx context.Context, baseURL, apiKey string) error {
	if err := m.settings.Save(ctx, baseURL, apiKey); err != nil {
		return err
	}
	return m.reloadSettings(ctx)
}

// SetModel persists the selected model.
func (m *Manager) SetModel(ctx context.Context, model string) error {
	if err := m.settings.SetModel(ctx, model); err != nil {
		return err
	}
	return m.reloadSettings(ctx)
}

func (m *Manager) reloadSettings(ctx context.Context) error {
	api, err := m.settings.Load(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.api = api
	m.mu.Unlock()
	return nil
}

// NewSession creates an empty session and makes it active.
func (m *Manager) NewSession(ctx context.Context) (*View, error) {
	sess := session.New()
	sess.LastUsed = m.now()

	m.mu.Lock()
	m.store.Put(sess)
	if err := m.store.Save(ctx); err != nil {
		m.store.Delete(sess.ID)
		m.mu.Unlock()
		return nil, err
	}
	m.activeID = sess.ID
	view := viewOf(sess)
	list := m.listLocked()
	m.mu.Unlock()

	logging.Info().Str("session", sess.ID).Msg("session created")
	m.renderer.SessionActivated(view)
	m.renderer.SessionsChanged(list)
	return &view, nil
}

// Switch makes id the active session and returns its display form. No
// network call is made; a turn in flight on another session is unaffected.
func (m *Manager) Switch(ctx context.Context, id string) (*View, error) {
	m.mu.Lock()
	view, err := m.activateLocked(ctx, id)
	list := m.listLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.renderer.SessionActivated(view)
	m.renderer.SessionsChanged(list)
	return &view, nil
}

// activateLocked sets the active id and bumps the session's LastUsed so the
// same session is selected on the next start.
func (m *Manager) activateLocked(ctx context.Context, id string) (View, error) {
	prev, err := m.store.Get(id)
	if err != nil {
		return View{}, err
	}

	m.store.Update(id, func(s *session.Session) { s.LastUsed = m.now() })
	if err := m.store.Save(ctx); err != nil {
		m.store.Put(prev)
		return View{}, err
	}
	m.activeID = id

	sess, _ := m.store.Get(id)
	return viewOf(sess), nil
}

// Delete removes a session. Deleting the only session is refused. When the
// active session is deleted, the most recently used remaining one becomes
// active.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()

	prev, err := m.store.Get(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if m.store.Len() <= 1 {
		m.mu.Unlock()
		return ErrLastSession
	}

	// The deletion and the activation of its successor are persisted by one
	// save, so a failure leaves both untouched.
	m.store.Delete(id)
	var next *session.Session
	if m.activeID == id {
		next, _ = m.store.MostRecent()
		m.store.Update(next.ID, func(s *session.Session) { s.LastUsed = m.now() })
	}
	if err := m.store.Save(ctx); err != nil {
		m.store.Put(prev)
		if next != nil {
			m.store.Put(next)
		}
		m.mu.Unlock()
		return err
	}

	var activated *View
	if next != nil {
		m.activeID = next.ID
		sess, _ := m.store.Get(next.ID)
		view := viewOf(sess)
		activated = &view
	}
	list := m.listLocked()
	m.mu.Unlock()

	logging.Info().Str("session", id).Msg("session deleted")
	if activated != nil {
		m.renderer.SessionActivated(*activated)
	}
	m.renderer.SessionsChanged(list)
	return nil
}

// List returns at most ListLimit sessions, most recently used first.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

func (m *Manager) listLocked() []Summary {
	now := m.now()
	recent := m.store.Recent(ListLimit)
	metrics.SetSessions(m.store.Len())

	list := make([]Summary, len(recent))
	for i, s := range recent {
		list[i] = Summary{
			ID:           s.ID,
			Title:        s.Title,
			DisplayTitle: session.DisplayTitle(s.Title),
			LastUsed:     s.LastUsed,
			TimeAgo:      session.TimeAgo(s.LastUsed, now),
			Active:       s.ID == m.activeID,
		}
	}
	return list
}

// View returns the display form of a session.
func (m *Manager) View(id string) (*View, error) {
	sess, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	view := viewOf(sess)
	return &view, nil
}

// Submit runs a turn on the active session.
func (m *Manager) Submit(ctx context.Context, prompt string) (*TurnResult, error) {
	id := m.ActiveID()
	if id == "" {
		return nil, ErrNoActiveSession
	}
	return m.SubmitTo(ctx, id, prompt)
}

// SubmitTo runs a turn on session id. At most one turn per session is in
// flight; the result is committed to id regardless of which session is
// active when the response arrives. On failure nothing is persisted.
func (m *Manager) SubmitTo(ctx context.Context, id, prompt string) (*TurnResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	m.mu.Lock()
	sess, err := m.store.Get(id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if m.inFlight[id] {
		m.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	m.inFlight[id] = true
	api := m.api
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inFlight, id)
		m.mu.Unlock()
	}()

	// A turn is never cancelled by its caller: once started, the request and
	// its commit run to completion against id.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	m.renderer.TurnStarted(id, prompt)

	messages := m.builder.Build(sess.Messages, prompt)
	logging.Debug().
		Str("session", id).
		Int("history", sess.MessageCount()).
		Int("messages", len(messages)).
		Int("prompt_tokens", conversation.EstimatePromptTokens(messages)).
		Msg("turn sending")

	reply, err := m.client.Complete(ctx, messages, api)
	if err != nil {
		m.fail(id, prompt, start, err)
		return nil, err
	}

	result, err := m.commit(ctx, id, prompt, reply.Content)
	if err != nil {
		m.fail(id, prompt, start, err)
		return nil, err
	}

	metrics.RecordTurn(metrics.OutcomeCommitted, time.Since(start))
	logging.Info().
		Str("session", id).
		Bool("has_code", result.HasCode).
		Dur("elapsed", time.Since(start)).
		Msg("turn committed")
	m.renderer.TurnCommitted(*result)
	return result, nil
}

// commit appends the user/assistant pair, trims the log, refreshes the
// caches and persists the store. The in-memory session is restored if
// persisting fails.
func (m *Manager) commit(ctx context.Context, id, prompt, reply string) (*TurnResult, error) {
	parsed := parser.Parse(reply)

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, err := m.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("commit turn: %w", err)
	}

	var updated *session.Session
	m.store.Update(id, func(s *session.Session) {
		s.Messages = conversation.Trim(append(s.Messages, conversation.Pair(prompt, reply)...), conversation.TrimLimit)
		if parsed.HasCode {
			s.CachedCode = parsed.Code
		}
		s.CachedExplanation = parsed.Explanation
		s.Title = session.Title(prompt)
		s.LastUsed = m.now()
		updated = s.Clone()
	})

	if err := m.store.Save(ctx); err != nil {
		m.store.Put(prev)
		return nil, fmt.Errorf("commit turn: %w", err)
	}

	return &TurnResult{
		SessionID:   id,
		Prompt:      prompt,
		Explanation: parsed.Explanation,
		Code:        parsed.Code,
		HasCode:     parsed.HasCode,
		Title:       updated.Title,
	}, nil
}

func (m *Manager) fail(id, prompt string, start time.Time, err error) {
	metrics.RecordTurn(metrics.OutcomeFailed, time.Since(start))

	ev := logging.Warn()
	if errors.Is(err, session.ErrNotFound) {
		ev = logging.Info()
	}
	ev.Err(err).Str("session", id).Msg("turn failed")

	m.renderer.TurnFailed(id, prompt, UserMessage(err))
}

// AttachFile prefixes a prompt with the contents of a file.
func AttachFile(name, content, prompt string) string {
	return fmt.Sprintf("[File: %s]\n%s\n\n%s", name, content, prompt)
}

func viewOf(s *session.Session) View {
	view := View{
		ID:    s.ID,
		Title: s.Title,
		Code:  s.Code(),
		Turns: []TurnView{},
	}
	for _, turn := range conversation.Turns(s.Messages) {
		view.Turns = append(view.Turns, TurnView{
			Prompt:      turn.Prompt,
			Explanation: parser.Explanation(turn.Response),
		})
	}
	return view
}
