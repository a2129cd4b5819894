package logger

import (
	"github.com/dataplane/orm/config"
	"github.com/dataplane/orm/dberrors"
	"go.uber.org/zap/zapcore"
)

// Init wires every named component logger from cfg and pushes
// cfg.Debug.SanitizeErrors into the dberrors package (spec §6/§7).
func Init(cfg *config.Config) error {
	level := parseLevel(cfg.Logger.Level)
	newLogger := func(file string) *Logger {
		return New(cfg.Logger.Dir, file, level, cfg.Logger.MaxSizeMB, cfg.Logger.MaxBackups, cfg.Logger.MaxAgeDays)
	}

	Codec = newLogger("codec.log")
	Validate = newLogger("validate.log")
	Pool = newLogger("pool.log")
	Relational = newLogger("relational.log")
	Document = newLogger("document.log")
	Session = newLogger("session.log")
	Relation = newLogger("relation.log")
	Migrate = newLogger("migrate.log")
	Binding = newLogger("binding.log")

	dberrors.SetSanitize(cfg.Debug.SanitizeErrors)
	return nil
}

func parseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
