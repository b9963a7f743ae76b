package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/guardspine/docsync/internal/logging"
	"github.com/guardspine/docsync/internal/model"
)

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
)

// ErrSilent marks a failure that has already been reported on stderr.
// main exits nonzero without printing it again.
var ErrSilent = errors.New("silent error")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "docsync",
	Short: "docsync - Self-updating documentation with cryptographic proofs",
	Long: `docsync verifies that documentation still matches the code it describes.

A manifest (guardspine.docs.yaml) attaches claims to documents and points
each claim at evidence: patterns expected to appear in source files or
other documents. docsync searches the repository for that evidence,
optionally redacts PII from the findings, and seals the results into
evidence packs protected by a hash chain.

A pack verifies offline: anyone holding it can confirm no result was
altered, reordered, or dropped after sealing.`,
	Version:       model.RunnerVersion,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number for docsync.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("docsync v" + model.RunnerVersion)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.docsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search the repository first so a project-local config wins,
		// then the home directory
		viper.AddConfigPath(".docsync")
		viper.AddConfigPath(home + "/.docsync")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match DOCSYNC_*
	viper.SetEnvPrefix("DOCSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// newLogger builds the structured logger from flags, environment, and
// config file. --verbose forces debug regardless of the configured level.
func newLogger() *slog.Logger {
	cfg := logging.Config{
		Level:  viper.GetString("log.level"),
		Format: viper.GetString("log.format"),
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if verbose {
		cfg.Level = "debug"
	}
	return logging.New(cfg)
}

// configOverrides layers config file and DOCSYNC_* environment values
// over the built-in defaults. Command flags are applied afterwards and
// win.
func configOverrides(cfg *model.Config) {
	if viper.IsSet("run.doc_workers") {
		cfg.Run.DocWorkers = viper.GetInt("run.doc_workers")
	}
	if viper.IsSet("run.claim_workers") {
		cfg.Run.ClaimWorkers = viper.GetInt("run.claim_workers")
	}
	if viper.IsSet("run.output") {
		cfg.Run.Output = viper.GetString("run.output")
	}
	if viper.IsSet("sanitize.engine") {
		cfg.Sanitize.Engine = viper.GetString("sanitize.engine")
	}
	if viper.IsSet("sanitize.endpoint") {
		cfg.Sanitize.Endpoint = viper.GetString("sanitize.endpoint")
	}
	if viper.IsSet("sanitize.model") {
		cfg.Sanitize.Model = viper.GetString("sanitize.model")
	}
	if viper.IsSet("sanitize.timeout") {
		cfg.Sanitize.Timeout = viper.GetInt("sanitize.timeout")
	}
	if viper.IsSet("sanitize.fail_closed") {
		cfg.Sanitize.FailClosed = viper.GetBool("sanitize.fail_closed")
	}
	if viper.IsSet("sanitize.salt_fingerprint") {
		cfg.Sanitize.SaltFingerprint = viper.GetString("sanitize.salt_fingerprint")
	}
	if viper.IsSet("sanitize.requests_per_second") {
		cfg.Sanitize.RequestsPerSecond = viper.GetFloat64("sanitize.requests_per_second")
	}
	if viper.IsSet("sanitize.burst") {
		cfg.Sanitize.Burst = viper.GetInt("sanitize.burst")
	}
	if viper.IsSet("sanitize.http_proxy") {
		cfg.Sanitize.HTTPProxy = viper.GetString("sanitize.http_proxy")
	}
	if viper.IsSet("sanitize.https_proxy") {
		cfg.Sanitize.HTTPSProxy = viper.GetString("sanitize.https_proxy")
	}
	if viper.IsSet("sanitize.no_proxy") {
		cfg.Sanitize.NoProxy = viper.GetString("sanitize.no_proxy")
	}
	if viper.IsSet("watch.debounce") {
		cfg.Watch.Debounce = viper.GetDuration("watch.debounce")
	}
	if viper.IsSet("watch.cache_ttl") {
		cfg.Watch.CacheTTL = viper.GetDuration("watch.cache_ttl")
	}
}
