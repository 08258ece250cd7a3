// Package logging builds the zap logger and adapts it to the service logger
// interface.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the encoder and minimum level.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // json|text
}

// New builds a zap logger: production config for json, development config
// for text.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Format == "text" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func parseLevel(raw string) (zapcore.Level, error) {
	switch raw {
	case "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
}

// Adapter exposes a zap logger through Debug/Info/Warn/Error with
// alternating key/value arguments.
type Adapter struct {
	sugar *zap.SugaredLogger
}

// NewAdapter wraps logger; nil yields a no-op logger.
func NewAdapter(logger *zap.Logger) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Adapter{sugar: logger.Sugar()}
}

func (a Adapter) Debug(msg string, args ...any) { a.sugar.Debugw(msg, args...) }
func (a Adapter) Info(msg string, args ...any)  { a.sugar.Infow(msg, args...) }
func (a Adapter) Warn(msg string, args ...any)  { a.sugar.Warnw(msg, args...) }
func (a Adapter) Error(msg string, args ...any) { a.sugar.Errorw(msg, args...) }
