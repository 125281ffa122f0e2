package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func parseLevel(s string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
	return l, nil
}

// initLogger builds the process logger from the global flags and installs
// it as zap.L(). Logs go to stderr; stdout carries command output.
func initLogger() *zap.Logger {
	level, err := parseLevel(logLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableCaller = !logCaller
	cfg.Encoding = logEncoding
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.MessageKey = "message"
	if strings.EqualFold(logEncoding, "console") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	l, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: couldn't create a logger: %v\n", err)
		l = zap.NewNop()
	}
	zap.ReplaceGlobals(l)
	return l
}

func syncLogger(logger *zap.Logger) {
	// EINVAL and ENOTTY come from syncing a terminal or pipe, see
	// https://github.com/uber-go/zap/issues/772
	err := logger.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return
	}
	fmt.Fprintf(os.Stderr, "syncing logger: %v\n", err)
}
