package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/danabrams/codegen/internal/conversation"
	"github.com/danabrams/codegen/internal/kv"
	"github.com/danabrams/codegen/internal/session"
)

// ScenarioBuilder persists a set of sessions for a test.
type ScenarioBuilder struct {
	t        *testing.T
	store    *session.Store
	base     time.Time
	sessions []*session.Session
}

// NewScenario creates a scenario builder writing to s.
func NewScenario(t *testing.T, s kv.Store) *ScenarioBuilder {
	t.Helper()
	return &ScenarioBuilder{
		t:     t,
		store: session.NewStore(s),
		base:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// WithSession adds a session last used age before the scenario's base time,
// with one committed turn per prompt.
func (b *ScenarioBuilder) WithSession(id string, age time.Duration, prompts ...string) *ScenarioBuilder {
	sess := session.New()
	sess.ID = id
	sess.LastUsed = b.base.Add(-age)
	for _, p := range prompts {
		reply := Reply("Explains "+p+".", "console.log("+`"`+p+`"`+");")
		sess.Messages = append(sess.Messages, conversation.Pair(p, reply)...)
		sess.Title = session.Title(p)
		sess.CachedExplanation = "Explains " + p + "."
		sess.CachedCode = `console.log("` + p + `");`
	}
	sess.Messages = conversation.Trim(sess.Messages, conversation.TrimLimit)
	b.sessions = append(b.sessions, sess)
	return b
}

// Build persists the sessions and returns them in insertion order.
func (b *ScenarioBuilder) Build() []*session.Session {
	b.t.Helper()
	for _, s := range b.sessions {
		b.store.Put(s)
	}
	if err := b.store.Save(context.Background()); err != nil {
		b.t.Fatalf("Build: %v", err)
	}
	return b.sessions
}
