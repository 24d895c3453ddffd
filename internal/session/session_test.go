package session

import (
	"strings"
	"testing"
	"time"

	"github.com/danabrams/codegen/internal/conversation"
)

func TestNewSession(t *testing.T) {
	sess := New()

	if !strings.HasPrefix(sess.ID, "chat_") {
		t.Errorf("ID = %q, want chat_ prefix", sess.ID)
	}
	if sess.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", sess.Title, DefaultTitle)
	}
	if sess.CachedCode != DefaultCode {
		t.Error("new session should carry the placeholder code")
	}
	if sess.MessageCount() != 0 {
		t.Errorf("MessageCount() = %d, want 0", sess.MessageCount())
	}
	if sess.LastUsed.IsZero() {
		t.Error("LastUsed should be set")
	}
}

func TestNewIDMonotonic(t *testing.T) {
	prev := NewID()
	seen := map[string]bool{prev: true}
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		if id <= prev {
			t.Fatalf("ids not increasing: %s after %s", id, prev)
		}
		seen[id] = true
		prev = id
	}
}

func TestCodeFallsBackToPlaceholder(t *testing.T) {
	sess := &Session{}
	if sess.Code() != DefaultCode {
		t.Error("empty cached code should fall back to placeholder")
	}
	sess.CachedCode = "x()"
	if sess.Code() != "x()" {
		t.Errorf("Code() = %q", sess.Code())
	}
}

func TestClone(t *testing.T) {
	sess := New()
	sess.Messages = append(sess.Messages, conversation.NewMessage(conversation.RoleUser, "hi"))

	clone := sess.Clone()
	clone.Messages[0].Content = "changed"
	clone.Title = "other"

	if sess.Messages[0].Content != "hi" || sess.Title != DefaultTitle {
		t.Error("Clone must not share state with the original")
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"short prompt", "short prompt"},
		{strings.Repeat("a", 30), strings.Repeat("a", 30)},
		{strings.Repeat("a", 31), strings.Repeat("a", 30) + "..."},
		{strings.Repeat("é", 35), strings.Repeat("é", 30) + "..."},
	}
	for _, tt := range tests {
		if got := Title(tt.prompt); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := DisplayTitle("Write a function that sorts"); got != "Write a function tha..." {
		t.Errorf("DisplayTitle() = %q", got)
	}
	if got := DisplayTitle(DefaultTitle); got != DefaultTitle {
		t.Errorf("DisplayTitle() = %q", got)
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "Just now"},
		{5 * time.Minute, "5m ago"},
		{59 * time.Minute, "59m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := TimeAgo(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("TimeAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
