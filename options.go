package planscope

import (
	"go.uber.org/zap"

	"github.com/mickamy/planscope/internal/config"
)

// Option configures an Analyzer.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	cfg    config.Config
	logger *zap.Logger
}

// WithConfig replaces the default warning thresholds.
func WithConfig(cfg Config) Option {
	return func(o *resolvedOptions) { o.cfg = cfg }
}

// WithLogger sets the logger used for debug output. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(o *resolvedOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// DefaultConfig returns the built-in warning thresholds.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads thresholds from a JSON or YAML file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}
