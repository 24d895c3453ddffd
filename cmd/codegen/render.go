package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"

	"github.com/danabrams/codegen/internal/manager"
)

// termRenderer draws manager updates on a terminal.
type termRenderer struct {
	mu  sync.Mutex
	out io.Writer

	// quiet suppresses session replay, for one-shot prompts.
	quiet atomic.Bool

	user      *color.Color
	assistant *color.Color
	code      *color.Color
	dim       *color.Color
	errColor  *color.Color
}

var _ manager.Renderer = (*termRenderer)(nil)

func newTermRenderer(out io.Writer, noColor bool) *termRenderer {
	if noColor {
		color.NoColor = true
	}
	return &termRenderer{
		out:       out,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen, color.Bold),
		code:      color.New(color.FgYellow),
		dim:       color.New(color.FgHiBlack),
		errColor:  color.New(color.FgRed),
	}
}

func (r *termRenderer) SessionActivated(view manager.View) {
	if r.quiet.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.out, r.dim.Sprintf("── %s (%s) ──", view.Title, view.ID))
	for _, turn := range view.Turns {
		r.userLine(turn.Prompt)
		r.assistantLine(turn.Explanation)
	}
	r.codeBlock(view.Code)
}

func (r *termRenderer) SessionsChanged([]manager.Summary) {}

func (r *termRenderer) TurnStarted(sessionID, prompt string) {
	if r.quiet.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.dim.Sprint("generating..."))
}

func (r *termRenderer) TurnCommitted(res manager.TurnResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.assistantLine(res.Explanation)
	if res.HasCode {
		r.codeBlock(res.Code)
	}
}

func (r *termRenderer) TurnFailed(sessionID, prompt, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s %s\n", r.assistant.Sprint("assistant ›"), r.errColor.Sprint(message))
}

// Sessions prints the session list.
func (r *termRenderer) Sessions(list []manager.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range list {
		marker := " "
		if s.Active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %d. %-23s %s  %s\n", marker, i+1, s.DisplayTitle, r.dim.Sprint(s.TimeAgo), r.dim.Sprint(s.ID))
	}
}

// Info prints a dim status line.
func (r *termRenderer) Info(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.dim.Sprintf(format, args...))
}

// Error prints an error line.
func (r *termRenderer) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.errColor.Sprintf("error: %v", err))
}

// Output prints code execution output.
func (r *termRenderer) Output(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, text)
}

func (r *termRenderer) userLine(prompt string) {
	fmt.Fprintf(r.out, "%s %s\n", r.user.Sprint("you ›"), prompt)
}

func (r *termRenderer) assistantLine(explanation string) {
	if explanation == "" {
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", r.assistant.Sprint("assistant ›"), explanation)
}

func (r *termRenderer) codeBlock(code string) {
	fmt.Fprintln(r.out, r.dim.Sprint("```javascript"))
	fmt.Fprintln(r.out, r.code.Sprint(strings.TrimRight(code, "\n")))
	fmt.Fprintln(r.out, r.dim.Sprint("```"))
}
