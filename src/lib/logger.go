package lib

import (
	"os"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. APP_ENV=production selects the
// JSON production config; anything else gets the development console
// encoder.
func NewLogger() *zap.Logger {
	var logger *zap.Logger
	var err error
	if os.Getenv("APP_ENV") == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	return logger
}
