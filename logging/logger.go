package logging

import "go.uber.org/zap"

// New creates a new zap logger for the environment: JSON for production,
// console for development and the example logger for anything else
func New(env string) (*zap.Logger, error) {
	switch env {
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	}
	return zap.NewExample(), nil
}
