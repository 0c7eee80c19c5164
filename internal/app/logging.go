package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spencer-dollahite/clitutor/internal/config"
)

// NewLogger builds the process logger. The returned level can be changed
// while the logger is in use.
//
// Development mode writes colored console output; otherwise output is JSON.
// A configured file takes the place of stderr, since stderr belongs to the
// terminal UI while a session is open.
func NewLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(cfg.ZapLevel())

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = level

	if cfg.File != "" {
		zc.OutputPaths = []string{cfg.File}
		zc.ErrorOutputPaths = []string{cfg.File}
		// Colors are for terminals.
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		zc.OutputPaths = []string{"stderr"}
	}

	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop(), level, NewComponentError("logger", "build", err)
	}
	return logger, level, nil
}
