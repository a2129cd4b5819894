// Package logger provides the engine's structured logging surface: one
// named *Logger per component, each writing to its own rotated file via
// lumberjack, wrapping go.uber.org/zap.
package logger

import (
	"path/filepath"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Named component loggers, wired by Init. Nil until Init runs; the
// zero value of *Logger safely no-ops so packages can log at init time
// in tests without crashing.
var (
	Codec     *Logger
	Validate  *Logger
	Pool      *Logger
	Relational *Logger
	Document  *Logger
	Session   *Logger
	Relation  *Logger
	Migrate   *Logger
	Binding   *Logger
)

// Logger wraps a *zap.Logger with the With(Database/Model)Context
// helpers every component uses to attach request/trace identity and
// the current lifecycle phase to a line (spec §6 observability).
type Logger struct {
	z *zap.Logger
}

// New builds a Logger writing JSON lines to dir/file, rotated by
// lumberjack at maxSizeMB with maxBackups kept for maxAgeDays.
func New(dir, file string, level zapcore.Level, maxSizeMB, maxBackups, maxAgeDays int) *Logger {
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, file),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	})
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, level)
	return &Logger{z: zap.New(core, zap.AddCaller())}
}

func (l *Logger) unwrap() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.unwrap().Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.unwrap().Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.unwrap().Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.unwrap().Error(msg, fields...) }

// With returns a child Logger carrying the given structured fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.unwrap().With(fields...)}
}

// WithDatabaseContext attaches the ambient request/trace identity and
// the executing phase to every subsequent line logged through the
// returned Logger.
func (l *Logger) WithDatabaseContext(dbctx *types.DatabaseContext, phase consts.Phase) *Logger {
	fields := []zap.Field{zap.String("phase", string(phase))}
	if dbctx != nil {
		if dbctx.UserID != "" {
			fields = append(fields, zap.String("user_id", dbctx.UserID))
		}
		if dbctx.RequestID != "" {
			fields = append(fields, zap.String("request_id", dbctx.RequestID))
		}
		if dbctx.TraceID != "" {
			fields = append(fields, zap.String("trace_id", dbctx.TraceID))
		}
	}
	return l.With(fields...)
}

// ZapLogger exposes the underlying *zap.Logger for integration with
// gorm's logger adapter.
func (l *Logger) ZapLogger() *zap.Logger { return l.unwrap() }
