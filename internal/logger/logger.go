// Package logger builds the zap loggers cderive components share.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger New builds.
type Options struct {
	// Level is a zap level name: debug, info, warn or error. Empty means warn.
	Level string
	// JSON selects structured JSON output instead of the console encoder.
	JSON bool
	// Output defaults to stderr; stdout carries generated code.
	Output io.Writer
}

// New builds a logger from opts.
func New(opts Options) (*zap.SugaredLogger, error) {
	level := zap.NewAtomicLevelAt(zap.WarnLevel)
	if opts.Level != "" {
		var err error
		if level, err = zap.ParseAtomicLevel(opts.Level); err != nil {
			return nil, err
		}
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var enc zapcore.Encoder
	if opts.JSON {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		// Human-readable: no timestamps or callers, just level and message.
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = ""
		cfg.CallerKey = ""
		cfg.NameKey = "logger"
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), level)
	return zap.New(core).Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
