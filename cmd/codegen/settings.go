package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View or change the completion endpoint settings",
	Long: `Settings are stored with the sessions. Without an API key, requests
carry cookies instead of an Authorization header.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the API configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.manager.Settings().Masked()
		fmt.Printf("base_url: %s\n", cfg.BaseURL)
		fmt.Printf("api_key:  %s\n", valueOr(cfg.APIKey, "(none)"))
		fmt.Printf("model:    %s\n", cfg.Model)
		return nil
	},
}

var (
	setBaseURL string
	setAPIKey  string
	setModel   string
)

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the API configuration",
	Long: `Change the API configuration. Only the given flags are changed.

Examples:
  codegen settings set --base-url https://api.openai.com/v1 --api-key sk-xxx
  codegen settings set --api-key ""      # use cookies instead of a key
  codegen settings set --model gpt-4o`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if !flags.Changed("base-url") && !flags.Changed("api-key") && !flags.Changed("model") {
			return fmt.Errorf("nothing to set: pass --base-url, --api-key or --model")
		}

		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if flags.Changed("base-url") || flags.Changed("api-key") {
			current := a.manager.Settings()
			baseURL, apiKey := current.BaseURL, current.APIKey
			if flags.Changed("base-url") {
				baseURL = setBaseURL
			}
			if flags.Changed("api-key") {
				apiKey = setAPIKey
			}
			if err := a.manager.SaveSettings(ctx, baseURL, apiKey); err != nil {
				return err
			}
		}
		if flags.Changed("model") {
			if err := a.manager.SetModel(ctx, setModel); err != nil {
				return err
			}
		}

		fmt.Println("Settings saved.")
		return nil
	},
}

func init() {
	settingsSetCmd.Flags().StringVar(&setBaseURL, "base-url", "", "API base URL")
	settingsSetCmd.Flags().StringVar(&setAPIKey, "api-key", "", "API key (empty to use cookies)")
	settingsSetCmd.Flags().StringVar(&setModel, "model", "", "model name")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}
