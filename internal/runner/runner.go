package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/danabrams/codegen/internal/logging"
)

// DefaultTimeout bounds a single execution.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned when the code does not finish within the timeout.
var ErrTimeout = errors.New("execution timed out")

// harness reads the code from stdin, captures console.log and reports the
// outcome as a single JSON document on stdout.
const harness = `
const chunks = [];
process.stdin.on('data', c => chunks.push(c));
process.stdin.on('end', () => {
  const code = Buffer.concat(chunks).toString('utf8');
  const show = v => (typeof v === 'object' ? JSON.stringify(v, null, 2) : String(v));
  const out = { console: [] };
  console.log = (...args) => out.console.push(args.map(show).join(' '));
  try {
    const result = (0, eval)(code);
    if (result !== undefined) out.returnValue = show(result);
  } catch (e) {
    out.error = {
      message: e && e.message !== undefined ? String(e.message) : String(e),
      stack: e && e.stack ? String(e.stack) : '',
    };
  }
  process.stdout.write(JSON.stringify(out));
});
`

// DefaultSearchPaths returns common locations of the node binary.
func DefaultSearchPaths() []string {
	home, _ := os.UserHomeDir()
	paths := []string{
		"/usr/local/bin/node",
		"/usr/bin/node",
		filepath.Join(home, ".volta", "bin", "node"),
	}

	if runtime.GOOS == "darwin" {
		paths = append(paths, "/opt/homebrew/bin/node")
	}

	return paths
}

// FindBinary locates node. It checks the configured path first, then PATH,
// then common locations.
func FindBinary(configPath string) (string, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		return "", fmt.Errorf("configured node path not found: %s", configPath)
	}

	if path, err := exec.LookPath("node"); err == nil {
		return path, nil
	}

	for _, path := range DefaultSearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("node binary not found in PATH or common locations")
}

// ExecError is an exception thrown by the executed code.
type ExecError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Result is the outcome of one execution.
type Result struct {
	ConsoleOutput  []string   `json:"console"`
	ReturnValue    string     `json:"returnValue,omitempty"`
	HasReturnValue bool       `json:"-"`
	Error          *ExecError `json:"error,omitempty"`
}

// Format renders the result as shown in the output pane.
func (r *Result) Format() string {
	if r.Error != nil {
		stack := r.Error.Stack
		if stack == "" {
			stack = "No stack trace available"
		}
		return fmt.Sprintf("Error: %s\n\nStack trace:\n%s", r.Error.Message, stack)
	}

	var b strings.Builder
	if len(r.ConsoleOutput) > 0 {
		b.WriteString("Console Output:\n")
		b.WriteString(strings.Join(r.ConsoleOutput, "\n"))
		b.WriteString("\n\n")
	}
	if r.HasReturnValue {
		b.WriteString("Return Value:\n")
		b.WriteString(r.ReturnValue)
	}
	if b.Len() == 0 {
		return "// Code executed successfully. No output or return value."
	}
	return b.String()
}

// Config holds runner settings.
type Config struct {
	BinaryPath string        // empty searches PATH
	Timeout    time.Duration // zero uses DefaultTimeout
	WorkDir    string
}

// Runner executes code with node.
type Runner struct {
	binary  string
	timeout time.Duration
	workDir string
}

// New locates node and returns a Runner.
func New(cfg Config) (*Runner, error) {
	binary, err := FindBinary(cfg.BinaryPath)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{binary: binary, timeout: timeout, workDir: cfg.WorkDir}, nil
}

// Binary returns the resolved node path.
func (r *Runner) Binary() string {
	return r.binary
}

// Run executes code and returns what it printed, returned or threw. An
// exception in the code is reported in Result.Error, not as an error.
func (r *Runner) Run(ctx context.Context, code string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, "-e", harness)
	cmd.Dir = r.workDir
	cmd.Env = childEnv(os.Environ())
	cmd.Stdin = strings.NewReader(code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		logging.Warn().Dur("timeout", r.timeout).Msg("code execution timed out")
		return nil, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var raw struct {
		Console     []string   `json:"console"`
		ReturnValue *string    `json:"returnValue"`
		Error       *ExecError `json:"error"`
	}
	if decodeErr := json.Unmarshal(stdout.Bytes(), &raw); decodeErr != nil {
		// The process died before reporting, e.g. process.exit() in the code.
		if err != nil {
			return nil, fmt.Errorf("run node: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("decode node output: %w", decodeErr)
	}

	res := &Result{ConsoleOutput: raw.Console, Error: raw.Error}
	if raw.ReturnValue != nil {
		res.ReturnValue = *raw.ReturnValue
		res.HasReturnValue = true
	}

	logging.Debug().
		Int("console_lines", len(res.ConsoleOutput)).
		Bool("threw", res.Error != nil).
		Dur("elapsed", elapsed).
		Msg("code executed")
	return res, nil
}
