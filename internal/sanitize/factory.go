package sanitize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/guardspine/docsync/internal/model"
)

// New creates a sanitizer based on configuration. A nil, nil return
// means sanitization is disabled.
func New(config Config, logger *slog.Logger) (Sanitizer, error) {
	engine := strings.ToLower(config.Engine)

	switch engine {
	case "shield", "pii-shield":
		return NewShieldSanitizer(config, logger)

	case "openai":
		return NewOpenAISanitizer(config, logger)

	case "", "none":
		// No engine configured - return nil (sanitization disabled)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown sanitizer engine: %s (supported: shield, openai, none)", config.Engine)
	}
}

// ConfigFromModel converts model.SanitizeConfig to sanitize.Config
func ConfigFromModel(modelConfig model.SanitizeConfig) Config {
	return Config{
		Engine:            modelConfig.Engine,
		Endpoint:          modelConfig.Endpoint,
		APIKey:            modelConfig.APIKey,
		Model:             modelConfig.Model,
		Timeout:           modelConfig.Timeout,
		FailClosed:        modelConfig.FailClosed,
		SaltFingerprint:   modelConfig.SaltFingerprint,
		RequestsPerSecond: modelConfig.RequestsPerSecond,
		Burst:             modelConfig.Burst,
		HTTPProxy:         modelConfig.HTTPProxy,
		HTTPSProxy:        modelConfig.HTTPSProxy,
		NoProxy:           modelConfig.NoProxy,
	}
}
