package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danabrams/codegen/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage codegen configuration",
	Long:  `View and modify codegen configuration stored in ~/.codegen/config.yaml.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value using dot-separated or slash-separated keys.

Examples:
  codegen config set server/port 8080
  codegen config set storage.backend redis
  codegen config set completion/model gpt-4o`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the configuration file, or the effective defaults when none exists.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}

func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, err
	}

	var cfg map[string]any
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = make(map[string]any)
	}
	return cfg, nil
}

func writeConfigFile(path string, cfg map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	// may hold API keys
	return os.WriteFile(path, data, 0600)
}

// setKey stores value under a dotted key, creating intermediate maps.
func setKey(cfg map[string]any, key string, value any) error {
	parts := strings.Split(strings.ReplaceAll(key, "/", "."), ".")
	current := cfg
	for i, part := range parts[:len(parts)-1] {
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return fmt.Errorf("cannot set nested key: %s is not a map", strings.Join(parts[:i+1], "."))
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	path := resolvedConfigPath()

	cfg, err := readConfigFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := setKey(cfg, key, parseValue(value)); err != nil {
		return err
	}
	if err := writeConfigFile(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Set %s = %s\n", strings.ReplaceAll(key, "/", "."), value)
	return nil
}

func parseValue(s string) any {
	var i int
	if n, _ := fmt.Sscanf(s, "%d", &i); n == 1 && fmt.Sprintf("%d", i) == s {
		return i
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("No config file found at %s\n", path)
		fmt.Println("\nEffective values:")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	fmt.Printf("Config file: %s\n\n", path)
	fmt.Print(string(data))
	return nil
}
