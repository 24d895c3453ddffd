package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/danabrams/codegen/internal/completion"
	"github.com/danabrams/codegen/internal/config"
	"github.com/danabrams/codegen/internal/manager"
	"github.com/danabrams/codegen/internal/runner"
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Chat interactively, or send a single prompt",
	Long: `Without arguments, chat starts an interactive session. Lines ending in
a backslash continue on the next line. Type /help for commands.

With a prompt argument, chat sends one turn to the active session, prints the
result and exits.`,
	RunE: runChat,
}

var (
	chatFile    string
	chatSession string
	chatNoColor bool
)

func init() {
	chatCmd.Flags().StringVarP(&chatFile, "file", "f", "", "attach a file to the first prompt")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session id to activate first")
	chatCmd.Flags().BoolVar(&chatNoColor, "no-color", false, "disable colored output")
}

// attachment is a file waiting to be prefixed to the next prompt.
type attachment struct {
	name    string
	content string
}

func readAttachment(path string) (*attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return &attachment{name: filepath.Base(path), content: string(data)}, nil
}

func (a *attachment) apply(prompt string) string {
	if a == nil {
		return prompt
	}
	return manager.AttachFile(a.name, a.content, prompt)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r := newTermRenderer(os.Stdout, chatNoColor)
	oneShot := len(args) > 0
	r.quiet.Store(oneShot)

	a, err := openApp(ctx, r)
	if err != nil {
		return err
	}
	defer a.Close()

	if chatSession != "" {
		if _, err := a.manager.Switch(ctx, chatSession); err != nil {
			return fmt.Errorf("switch to %s: %w", chatSession, err)
		}
	}

	var pending *attachment
	if chatFile != "" {
		if pending, err = readAttachment(chatFile); err != nil {
			return err
		}
	}

	if oneShot {
		_, err := a.manager.Submit(ctx, pending.apply(strings.Join(args, " ")))
		return err
	}
	return repl(ctx, a, r, pending)
}

const helpText = `Commands:
  /new              start a new chat
  /sessions         list recent chats
  /switch <n|id>    switch to a chat by list number or id
  /delete <n|id>    delete a chat
  /file <path>      attach a file to the next prompt
  /code             show the current code
  /run              execute the current code with node
  /settings         show the API configuration
  /help             show this help
  /exit             quit`

var commands = []string{"/new", "/sessions", "/switch", "/delete", "/file", "/code", "/run", "/settings", "/help", "/exit"}

func historyPath() string {
	return filepath.Join(config.Dir(), "history")
}

func repl(ctx context.Context, a *app, r *termRenderer, pending *attachment) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		var out []string
		for _, c := range commands {
			if strings.HasPrefix(c, input) {
				out = append(out, c)
			}
		}
		return out
	})

	if f, err := os.Open(historyPath()); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if err := os.MkdirAll(filepath.Dir(historyPath()), 0755); err != nil {
			return
		}
		if f, err := os.Create(historyPath()); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	r.Info("Type /help for commands.")
	var exec *runner.Runner

	for {
		input, err := readInput(line)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}
		line.AppendHistory(trimmed)

		if strings.HasPrefix(trimmed, "/") {
			name, arg := parseCommand(trimmed)
			switch name {
			case "exit", "quit":
				return nil
			case "help":
				r.Output(helpText)
			case "new":
				if _, err := a.manager.NewSession(ctx); err != nil {
					r.Error(err)
				}
			case "sessions":
				r.Sessions(a.manager.List())
			case "switch":
				if _, err := a.manager.Switch(ctx, resolveSession(arg, a.manager.List())); err != nil {
					r.Error(err)
				}
			case "delete":
				if err := a.manager.Delete(ctx, resolveSession(arg, a.manager.List())); err != nil {
					r.Error(err)
				} else {
					r.Info("deleted")
				}
			case "file":
				att, err := readAttachment(arg)
				if err != nil {
					r.Error(err)
					continue
				}
				pending = att
				r.Info("attached %s (%d bytes) to the next prompt", att.name, len(att.content))
			case "code":
				if view, err := a.manager.View(a.manager.ActiveID()); err == nil {
					r.codeBlock(view.Code)
				}
			case "run":
				if exec == nil {
					if exec = newRunner(a.cfg); exec == nil {
						r.Error(errors.New("node is not available"))
						continue
					}
				}
				runCode(ctx, a, r, exec)
			case "settings":
				cfg := a.manager.Settings().Masked()
				r.Info("base url: %s\napi key:  %s\nmodel:    %s", cfg.BaseURL, valueOr(cfg.APIKey, "(none, using cookies)"), cfg.Model)
			default:
				r.Output(fmt.Sprintf("Unknown command: %s\n%s", name, helpText))
			}
			continue
		}

		_, err = a.manager.Submit(ctx, pending.apply(trimmed))
		pending = nil
		if err != nil && !isRendered(err) {
			r.Error(err)
		}
	}
}

// readInput reads one prompt, joining lines that end in a backslash.
func readInput(line *liner.State) (string, error) {
	var lines []string
	prompt := "codegen> "
	for {
		text, err := line.Prompt(prompt)
		if err != nil {
			if len(lines) == 0 || !errors.Is(err, io.EOF) {
				return "", err
			}
			return strings.Join(lines, "\n"), nil
		}
		if strings.HasSuffix(text, "\\") {
			lines = append(lines, strings.TrimSuffix(text, "\\"))
			prompt = "...      "
			continue
		}
		lines = append(lines, text)
		return strings.Join(lines, "\n"), nil
	}
}

// parseCommand splits "/name arg..." into its name and the rest.
func parseCommand(input string) (name, arg string) {
	input = strings.TrimPrefix(strings.TrimSpace(input), "/")
	name, arg, _ = strings.Cut(input, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// resolveSession maps a 1-based list position to a session id; anything
// else is taken as an id.
func resolveSession(arg string, list []manager.Summary) string {
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(list) {
		return list[n-1].ID
	}
	return arg
}

// isRendered reports whether the renderer already showed err as a failed
// turn.
func isRendered(err error) bool {
	var apiErr *completion.APIError
	var netErr *completion.NetworkError
	return errors.As(err, &apiErr) || errors.As(err, &netErr)
}

func runCode(ctx context.Context, a *app, r *termRenderer, exec *runner.Runner) {
	view, err := a.manager.View(a.manager.ActiveID())
	if err != nil {
		r.Error(err)
		return
	}
	res, err := exec.Run(ctx, view.Code)
	if err != nil {
		r.Error(err)
		return
	}
	r.Output(res.Format())
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
