package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initLogger builds the JSON production logger at the given level. An
// unknown level falls back to info. Every entry carries the service name
// and build version so that logs from several instances can be told apart.
func initLogger(level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.EncoderConfig = encoderConfig
	zapConfig.InitialFields = map[string]any{
		"service": "statestore",
		"version": version,
	}

	return zapConfig.Build()
}
