// Package conversation holds the message model shared by sessions and the
// completion client, and builds the bounded context sent on each turn.
package conversation

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TrimLimit is the maximum number of messages kept in a session's log
// (three user/assistant pairs).
const TrimLimit = 6

// Message is a single entry of a session's log. Messages are never modified
// after they are appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Now returns the current time at the precision messages and sessions are
// persisted with, so that a save/load cycle reproduces identical values.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: Now(),
	}
}

// Pair returns a user message and the assistant reply to it, in that order.
func Pair(prompt, reply string) []Message {
	return []Message{
		NewMessage(RoleUser, prompt),
		NewMessage(RoleAssistant, reply),
	}
}

// Trim returns at most the last limit messages, preserving order. The result
// never aliases the input slice.
func Trim(messages []Message, limit int) []Message {
	if limit < 0 {
		limit = 0
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// Turn is a prompt and the explanation shown for it.
type Turn struct {
	Prompt   string
	Response string
}

// Turns groups a log into consecutive user/assistant pairs. Entries that do
// not form a pair are skipped.
func Turns(messages []Message) []Turn {
	var turns []Turn
	for i := 0; i+1 < len(messages); i += 2 {
		user, assistant := messages[i], messages[i+1]
		if user.Role != RoleUser || assistant.Role != RoleAssistant {
			continue
		}
		turns = append(turns, Turn{Prompt: user.Content, Response: assistant.Content})
	}
	return turns
}
