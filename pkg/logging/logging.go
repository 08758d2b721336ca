package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init builds the process-wide zap logger and installs it as the global, so
// packages can log through zap.S() without carrying a logger around.
func Init(serviceName, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	if serviceName != "" {
		logger = logger.With(zap.String("service", serviceName))
	}

	zap.ReplaceGlobals(logger)
	return logger, nil
}
