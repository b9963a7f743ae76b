package model

import "time"

// Config is the full runtime configuration. The CLI assembles it from
// flags, DOCSYNC_* environment variables, and the config file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Run      RunConfig      `yaml:"run"`
	Sanitize SanitizeConfig `yaml:"sanitize"`
	Watch    WatchConfig    `yaml:"watch"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// RunConfig controls run concurrency and output
type RunConfig struct {
	DocWorkers   int    `yaml:"doc_workers"`   // concurrent documents
	ClaimWorkers int    `yaml:"claim_workers"` // concurrent claims per document
	Output       string `yaml:"output"`        // evidence pack output directory
}

// SanitizeConfig configures the PII redaction engine
type SanitizeConfig struct {
	Engine            string  `yaml:"engine"` // shield, openai, or none
	Endpoint          string  `yaml:"endpoint"`
	APIKey            string  `yaml:"api_key"` // prefer the environment over the config file
	Model             string  `yaml:"model"`
	Timeout           int     `yaml:"timeout"` // seconds
	FailClosed        bool    `yaml:"fail_closed"`
	SaltFingerprint   string  `yaml:"salt_fingerprint"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	HTTPProxy         string  `yaml:"http_proxy"`
	HTTPSProxy        string  `yaml:"https_proxy"`
	NoProxy           string  `yaml:"no_proxy"`
}

// WatchConfig controls watch mode
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`  // quiet period after an event burst
	CacheTTL time.Duration `yaml:"cache_ttl"` // search result cache lifetime
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Run: RunConfig{
			DocWorkers:   4,
			ClaimWorkers: 8,
			Output:       ".",
		},
		Sanitize: SanitizeConfig{
			Engine:            "none",
			Timeout:           5,
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
			CacheTTL: 10 * time.Minute,
		},
	}
}
