package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/danabrams/codegen/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run <file.js | ->",
	Short: "Execute JavaScript with node and show its output",
	Long: `Execute a JavaScript file, or stdin when the argument is "-". Without
an argument, the active session's code is executed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var code string
	switch {
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		code = string(data)
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		code = string(data)
	default:
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		view, err := a.manager.View(a.manager.ActiveID())
		a.Close()
		if err != nil {
			return err
		}
		code = view.Code
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := runner.New(runner.Config{BinaryPath: cfg.Runner.NodePath, Timeout: cfg.Runner.Timeout()})
	if err != nil {
		return err
	}

	res, err := r.Run(ctx, code)
	if err != nil {
		return err
	}
	fmt.Println(res.Format())
	if res.Error != nil {
		os.Exit(1)
	}
	return nil
}
