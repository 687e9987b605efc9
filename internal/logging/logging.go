package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the run logger. Level OFF (the default) installs a nop logger
// so that disabled logging pays no formatting cost. All output goes to
// stderr; stdout is reserved for CSV rows and the human report.
func New(level string) (*zap.Logger, error) {
	var zl zapcore.Level

	switch strings.ToUpper(level) {
	case "", "OFF":
		return zap.NewNop(), nil
	case "ERROR":
		zl = zapcore.ErrorLevel
	case "WARNING":
		zl = zapcore.WarnLevel
	case "INFO":
		zl = zapcore.InfoLevel
	case "DEBUG":
		zl = zapcore.DebugLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true

	return cfg.Build()
}
