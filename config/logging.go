package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds a zap logger: JSON production encoding or a colored
// development console, at the configured level.
func (l LoggingConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level %q: %w", l.Level, err)
	}

	var zc zap.Config
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level
	return zc.Build()
}
