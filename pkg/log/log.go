// Package log builds the logr.Logger used throughout kqlite-pg, backed by zap.
package log

import (
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelInfo  = 0
	LevelDebug = 1
	LevelTrace = 2
)

// Options controls how CreateLogger builds its zap core.
type Options struct {
	Name    string
	Level   int
	File    string
	Format  string // "console" or "json"
	Dev     bool
}

func timeEncoder(encfg *zapcore.EncoderConfig) {
	encfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.StampMilli)
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	if path == "" {
		return zapcore.AddSync(os.Stderr), nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}

// CreateLogger mirrors the teacher's util/log.CreateLogger shape: a
// logr.Logger façade backed by a configured zap core, optionally named.
func CreateLogger(opts Options) (logr.Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	timeEncoder(&encCfg)

	var encoder zapcore.Encoder
	if opts.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	sink, err := openSink(opts.File)
	if err != nil {
		return logr.Logger{}, err
	}

	level := zapcore.InfoLevel
	if opts.Level > 0 {
		level = zapcore.Level(-opts.Level)
	}

	core := zapcore.NewCore(encoder, sink, level)
	zl := zap.New(core)
	if opts.Dev || opts.Level > 0 {
		zl = zl.WithOptions(zap.Development())
	}

	logger := zapr.NewLogger(zl)
	if opts.Name != "" {
		logger = logger.WithName(opts.Name)
	}
	return logger, nil
}
