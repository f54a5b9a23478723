package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is printf-style; trailing newlines in the format are dropped for
// the leveled methods. Printf writes the raw text to stdout and is used for
// report output rather than diagnostics.
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	Fatal(format string, v ...interface{})
	Printf(format string, v ...interface{})
}

type logger struct {
	sugar *zap.SugaredLogger
}

// make sure it implements Logger
var _ Logger = (*logger)(nil)

func zapLevel(level int) zapcore.Level {
	switch level {
	case 3:
		return zapcore.DebugLevel
	case 2:
		return zapcore.InfoLevel
	case 1:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// NewLogger builds a console logger writing to stderr at the given level,
// 3 being debug and 0 error.
func NewLogger(level int) Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	z, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to build logger: %v\n", err)
		os.Exit(1)
	}
	return NewZapLogger(z)
}

func NewZapLogger(z *zap.Logger) Logger {
	return &logger{sugar: z.Sugar()}
}

func trim(format string) string {
	return strings.TrimRight(format, "\n")
}

func (l *logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(trim(format), v...)
}

func (l *logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(trim(format), v...)
}

func (l *logger) Warn(format string, v ...interface{}) {
	l.sugar.Warnf(trim(format), v...)
}

func (l *logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(trim(format), v...)
}

// Fatal logs and exits with status 1.
func (l *logger) Fatal(format string, v ...interface{}) {
	l.sugar.Fatalf(trim(format), v...)
}

func (l *logger) Printf(format string, v ...interface{}) {
	fmt.Printf(format, v...)
}

// OtelErrorHandler routes errors reported by the OTel SDK (failed exports,
// dropped spans) into the logger.
type OtelErrorHandler struct {
	Logger
}

func (h OtelErrorHandler) Handle(err error) {
	h.Logger.Warn("otel: %v\n", err)
}
