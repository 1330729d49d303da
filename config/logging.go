package config

import (
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/logging"
)

// setLogger picks the zap configuration for the environment
func setLogger(env string) (*zap.Logger, error) {
	return logging.New(env)
}
