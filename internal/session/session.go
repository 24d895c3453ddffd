// Package session provides the session model and the persisted session store.
// A session is one independent conversation with its own message log and the
// code most recently generated in it.
package session

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/danabrams/codegen/internal/conversation"
)

// DefaultTitle is the title of a session that has no committed turn yet.
const DefaultTitle = "New Chat"

// DefaultCode seeds the code of a new session.
const DefaultCode = `// The AI will generate JavaScript code based on your prompts
// This code will run in the browser when you click "Run Code"

// Example:
function helloWorld() {
  const container = document.createElement('div');
  container.textContent = 'Hello, World!';
  document.body.appendChild(container);
  return 'Element added to page';
}`

const (
	titleLength        = 30
	displayTitleLength = 20
)

// ErrNotFound is returned when a session is not found.
var ErrNotFound = errors.New("session not found")

// Session is one conversation thread.
type Session struct {
	ID                string                 `json:"id"`
	Title             string                 `json:"title"`
	Messages          []conversation.Message `json:"messages"`
	CachedCode        string                 `json:"code"`
	CachedExplanation string                 `json:"explanation"`
	LastUsed          time.Time              `json:"lastUsed"`
}

// NewID returns a fresh session id. Ids are time-ordered and monotonic
// within the process.
func NewID() string {
	return "chat_" + ulid.Make().String()
}

// New creates an empty session with the default title and placeholder code.
func New() *Session {
	return &Session{
		ID:         NewID(),
		Title:      DefaultTitle,
		Messages:   []conversation.Message{},
		CachedCode: DefaultCode,
		LastUsed:   conversation.Now(),
	}
}

// Code returns the cached code, or the placeholder when none is cached.
func (s *Session) Code() string {
	if s.CachedCode == "" {
		return DefaultCode
	}
	return s.CachedCode
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Messages = make([]conversation.Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	return &clone
}

// MessageCount returns the number of messages in the log.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// Title derives a session title from a prompt: the prompt itself when it is
// at most 30 characters, otherwise its first 30 characters and "...".
func Title(prompt string) string {
	return truncate(prompt, titleLength)
}

// DisplayTitle shortens a title for list rendering.
func DisplayTitle(title string) string {
	return truncate(title, displayTitleLength)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// TimeAgo renders how long ago t was, relative to now.
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}
