package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/guardspine/docsync/internal/model"
)

// configCmd represents the config command. Bare "docsync config" shows
// the effective configuration, same as "config show".
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage docsync configuration",
	Long: `Manage docsync configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (DOCSYNC_*)
3. Config file (~/.docsync/config.yaml)
4. Defaults`,
	RunE: showConfig,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, the config file, and environment variables.`,
	RunE:  showConfig,
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg := model.DefaultConfig()
	configOverrides(cfg)

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
	} else {
		fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
	}

	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println("  Current Configuration")
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	fmt.Println(string(yamlData))

	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Println("Configuration hierarchy (highest to lowest priority):")
	fmt.Println("  1. CLI flags")
	fmt.Println("  2. Environment variables (DOCSYNC_*, SHIELD_API_KEY, OPENAI_API_KEY)")
	fmt.Println("  3. Config file (~/.docsync/config.yaml)")
	fmt.Println("  4. Defaults")
	fmt.Println()

	return nil
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.docsync/config.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configDir := home + "/.docsync"
		configPath := configDir + "/config.yaml"

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'docsync config show' to view it, or delete it first to recreate", configPath)
		}

		// Create directory
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		// Create config file
		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		// Helper for writing with error checking
		printf := func(format string, a ...interface{}) {
			if err != nil {
				return
			}
			_, err = fmt.Fprintf(f, format, a...)
		}

		printf("# docsync Configuration File\n")
		printf("#\n")
		printf("# Configuration hierarchy (highest to lowest priority):\n")
		printf("#   1. CLI flags\n")
		printf("#   2. Environment variables (DOCSYNC_*)\n")
		printf("#   3. This config file\n")
		printf("#   4. Built-in defaults\n\n")

		// Marshal the complete default config to YAML
		yamlData, err := yaml.Marshal(model.DefaultConfig())
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		if err == nil {
			if _, wErr := f.Write(yamlData); wErr != nil {
				return fmt.Errorf("error writing config: %w", wErr)
			}
		}

		printf("\n# Durations (watch.debounce, watch.cache_ttl) also accept forms\n")
		printf("# like 500ms, 2s, 10m.\n")
		printf("\n# API keys (recommended to use environment variables instead):\n")
		printf("#   export SHIELD_API_KEY=...\n")
		printf("#   export OPENAI_API_KEY=sk-...\n")

		if err != nil {
			return err
		}

		fmt.Printf("Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  docsync config show\n")
		fmt.Printf("\nTo customize, edit the file with your preferred editor:\n")
		fmt.Printf("  $EDITOR %s\n", configPath)
		fmt.Printf("\n")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
