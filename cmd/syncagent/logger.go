package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logs go to stderr, stdout carries the synced content.
func buildZapLogger(encoding string) (*zap.Logger, error) {
	if encoding == "json" {
		config := zap.NewProductionConfig()
		config.EncoderConfig.MessageKey = "message"
		config.EncoderConfig.LevelKey = "severity"
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		config.OutputPaths = []string{"stderr"}

		return config.Build()
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.OutputPaths = []string{"stderr"}

	return config.Build()
}
