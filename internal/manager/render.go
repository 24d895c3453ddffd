package manager

import "time"

// View is the display form of a session: its code and its log replayed as
// prompt/explanation pairs.
type View struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Code  string     `json:"code"`
	Turns []TurnView `json:"turns"`
}

// TurnView is one replayed turn.
type TurnView struct {
	Prompt      string `json:"prompt"`
	Explanation string `json:"explanation"`
}

// Summary is one entry of the session list.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DisplayTitle string    `json:"display_title"`
	LastUsed     time.Time `json:"last_used"`
	TimeAgo      string    `json:"time_ago"`
	Active       bool      `json:"active"`
}

// TurnResult is the outcome of a committed turn.
type TurnResult struct {
	SessionID   string `json:"session_id"`
	Prompt      string `json:"prompt"`
	Explanation string `json:"explanation"`
	Code        string `json:"code,omitempty"`
	HasCode     bool   `json:"has_code"`
	Title       string `json:"title"`
}

// Renderer receives display updates. The manager never renders anything
// itself; implementations own the display surface. Calls are made without
// the manager's lock held.
type Renderer interface {
	SessionActivated(view View)
	SessionsChanged(list []Summary)
	TurnStarted(sessionID, prompt string)
	TurnCommitted(result TurnResult)
	TurnFailed(sessionID, prompt, message string)
}

// NopRenderer discards all updates.
type NopRenderer struct{}

func (NopRenderer) SessionActivated(View) {}
func (NopRenderer) SessionsChanged([]Summary) {}
func (NopRenderer) TurnStarted(string, string) {}
func (NopRenderer) TurnCommitted(TurnResult) {}
func (NopRenderer) TurnFailed(string, string, string) {}
