// Package log wraps zap with the run identity every entry carries.
//
// The pipeline logs through Logger with structured field maps; CLI and
// debug surfaces call Sugar() for printf-style output where convenience
// wins over allocation cost.
package log

import (
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/dredge/types"
)

// Logger emits JSON entries stamped with the run identity fields.
//
// Pipeline paths log through this directly; CLI and debug surfaces call
// Sugar() for printf-style output.
type Logger struct {
	zap   *zap.Logger
	level zapcore.Level
}

// SugaredLogger is the printf-style variant used by CLI and debug paths.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger builds a stderr logger stamped with runMeta. The debug flag
// lowers the threshold from info to debug; production tiers run with
// debug off.
func NewLogger(runMeta *types.RunMeta, debug bool) *Logger {
	return newLoggerWithWriter(runMeta, os.Stderr, debug)
}

// WithOutput redirects log output, keeping the receiver's level.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	// Swap the core, keep the accumulated context fields
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		l.level,
	)
	clone := l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))
	return &Logger{zap: clone, level: l.level}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

func newLoggerWithWriter(runMeta *types.RunMeta, w io.Writer, debug bool) *Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level,
	)

	contextFields := []zap.Field{
		zap.String("run_id", runMeta.RunID),
	}
	if runMeta.Environment != "" {
		contextFields = append(contextFields, zap.String("env", runMeta.Environment))
	}

	zapLogger := zap.New(core).With(contextFields...)
	return &Logger{zap: zapLogger, level: level}
}

// flatten converts a field map into sorted zap fields so entries keep a
// stable key order and log pipelines can index fields at the top level.
func flatten(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zf := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		zf = append(zf, zap.Any(k, fields[k]))
	}
	return zf
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, flatten(fields)...)
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, flatten(fields)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, flatten(fields)...)
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, flatten(fields)...)
}

// Sugar returns the printf-style variant sharing this logger's core.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
