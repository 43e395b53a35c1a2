package logging

import (
	"os"

	"go.uber.org/zap"
)

// GetSugaredLogger builds the development logger; LOG_FORMAT=json switches to
// the production encoder for deployments that ship logs.
func GetSugaredLogger() *zap.SugaredLogger {
	build := zap.NewDevelopment
	if os.Getenv("LOG_FORMAT") == "json" {
		build = zap.NewProduction
	}
	logger, err := build()
	if err != nil {
		panic("cannot initialize zap")
	}
	sl := logger.Sugar()

	return sl
}

// GetFileLogger writes to path instead of stderr, for programs that own the
// terminal.
func GetFileLogger(path string) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
