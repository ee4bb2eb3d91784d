// Package logger builds the process logger. Production mode emits JSON
// suitable for shipping; anything else gets the readable development format.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

func New(mode string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}
