// Package config loads the engine's runtime configuration (spec §6).
// Priority, highest to lowest: environment variable, config file
// (ini/yaml/json, auto-detected by github.com/spf13/viper), then the
// `default` struct tag filled in by github.com/creasty/defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	App = new(Config)

	configPaths = []string{}
	configFile  = ""
	configName  = "config"
	configType  = "ini"

	inited  bool
	tempdir string
	cv      *viper.Viper
)

// Config is the engine's complete runtime configuration.
type Config struct {
	Database `json:"database" mapstructure:"database" ini:"database" yaml:"database"`
	Pool     `json:"pool" mapstructure:"pool" ini:"pool" yaml:"pool"`
	Logger   `json:"logger" mapstructure:"logger" ini:"logger" yaml:"logger"`
	Debug    `json:"debug" mapstructure:"debug" ini:"debug" yaml:"debug"`
}

// Database holds the backend driver selection and connection string
// (spec §6 DB_URI).
type Database struct {
	Driver string `json:"driver" mapstructure:"driver" ini:"driver" yaml:"driver" default:"postgres"`
	URI    string `json:"uri" mapstructure:"uri" ini:"uri" yaml:"uri"`
}

func (d *Database) setDefault() {
	cv.SetDefault("database.driver", "postgres")
	cv.SetDefault("database.uri", "")
}

// Pool mirrors the Connection & Pool Manager's configuration surface
// (spec §4.5/§6 DB_POOL_MIN/MAX/ACQUIRE_TIMEOUT_MS,
// DB_PARALLEL_CODEC_THRESHOLD).
type Pool struct {
	MinConns               int `json:"min_conns" mapstructure:"min_conns" ini:"min_conns" yaml:"min_conns" default:"2"`
	MaxConns               int `json:"max_conns" mapstructure:"max_conns" ini:"max_conns" yaml:"max_conns" default:"10"`
	AcquireTimeoutMS       int `json:"acquire_timeout_ms" mapstructure:"acquire_timeout_ms" ini:"acquire_timeout_ms" yaml:"acquire_timeout_ms" default:"5000"`
	ParallelCodecThreshold int `json:"parallel_codec_threshold" mapstructure:"parallel_codec_threshold" ini:"parallel_codec_threshold" yaml:"parallel_codec_threshold" default:"50"`
}

func (p *Pool) setDefault() {
	cv.SetDefault("pool.min_conns", 2)
	cv.SetDefault("pool.max_conns", 10)
	cv.SetDefault("pool.acquire_timeout_ms", 5000)
	cv.SetDefault("pool.parallel_codec_threshold", 50)
}

// Logger configures the per-component lumberjack-rotated log files.
type Logger struct {
	Level      string `json:"level" mapstructure:"level" ini:"level" yaml:"level" default:"info"`
	Dir        string `json:"dir" mapstructure:"dir" ini:"dir" yaml:"dir" default:"logs"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb" ini:"max_size_mb" yaml:"max_size_mb" default:"100"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups" ini:"max_backups" yaml:"max_backups" default:"5"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days" ini:"max_age_days" yaml:"max_age_days" default:"28"`
}

func (l *Logger) setDefault() {
	cv.SetDefault("logger.level", "info")
	cv.SetDefault("logger.dir", "logs")
	cv.SetDefault("logger.max_size_mb", 100)
	cv.SetDefault("logger.max_backups", 5)
	cv.SetDefault("logger.max_age_days", 28)
}

// Debug gates tracing spans and error-message sanitization (spec §6
// DB_TRACING_ENABLED, DB_SANITIZE_ERRORS; spec §7 debug-mode detail).
type Debug struct {
	TracingEnabled bool `json:"tracing_enabled" mapstructure:"tracing_enabled" ini:"tracing_enabled" yaml:"tracing_enabled" default:"false"`
	SanitizeErrors bool `json:"sanitize_errors" mapstructure:"sanitize_errors" ini:"sanitize_errors" yaml:"sanitize_errors" default:"true"`
}

func (d *Debug) setDefault() {
	cv.SetDefault("debug.tracing_enabled", false)
	cv.SetDefault("debug.sanitize_errors", true)
}

func (c *Config) setDefault() {
	c.Database.setDefault()
	c.Pool.setDefault()
	c.Logger.setDefault()
	c.Debug.setDefault()
}

// Init loads App from the environment, an optional config file, and
// struct-tag defaults, in that priority order.
func Init() (err error) {
	if flag.Lookup("test.v") == nil {
		if tempdir, err = os.MkdirTemp("", "orm_"); err != nil {
			return errors.Wrap(err, "failed to create temp dir")
		}
		fmt.Fprintf(os.Stdout, "create temp dir: %s\n", tempdir)
	}

	codecRegistry := viper.NewCodecRegistry()
	if err = codecRegistry.RegisterCodec("ini", ini.Codec{}); err != nil {
		return err
	}
	cv = viper.NewWithOptions(viper.WithCodecRegistry(codecRegistry))
	cv.AutomaticEnv()
	cv.AllowEmptyEnv(true)
	cv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	App = new(Config)
	if err = defaults.Set(App); err != nil {
		return errors.Wrap(err, "failed to apply default struct tags")
	}
	App.setDefault()

	if len(configFile) > 0 {
		cv.SetConfigFile(configFile)
	} else {
		cv.SetConfigName(configName)
		cv.SetConfigType(configType)
	}
	cv.AddConfigPath(".")
	cv.AddConfigPath("/etc/")
	for _, path := range configPaths {
		cv.AddConfigPath(path)
	}

	if err = cv.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if flag.Lookup("test.v") == nil {
				if err = os.WriteFile(filepath.Join(tempdir, fmt.Sprintf("%s.%s", configName, configType)), nil, 0o600); err != nil {
					return errors.Wrap(err, "failed to create config file")
				}
			}
		} else {
			return errors.Wrap(err, "failed to read config file")
		}
	}

	// DB_URI and friends arrive as bare env vars per spec §6, not
	// namespaced under DATABASE_/POOL_/DEBUG_; bind them explicitly
	// since AutomaticEnv alone only matches the nested key shape.
	_ = cv.BindEnv("database.uri", "DB_URI")
	_ = cv.BindEnv("pool.min_conns", "DB_POOL_MIN")
	_ = cv.BindEnv("pool.max_conns", "DB_POOL_MAX")
	_ = cv.BindEnv("pool.acquire_timeout_ms", "DB_POOL_ACQUIRE_TIMEOUT_MS")
	_ = cv.BindEnv("pool.parallel_codec_threshold", "DB_PARALLEL_CODEC_THRESHOLD")
	_ = cv.BindEnv("debug.tracing_enabled", "DB_TRACING_ENABLED")
	_ = cv.BindEnv("debug.sanitize_errors", "DB_SANITIZE_ERRORS")

	if err = cv.Unmarshal(App); err != nil {
		return errors.Wrap(err, "failed to unmarshal config")
	}

	inited = true
	return nil
}

func Clean() {
	if tempdir == "" {
		return
	}
	if err := os.RemoveAll(tempdir); err != nil {
		zap.S().Errorw("failed to remove temp dir", "error", err, "dir", tempdir)
	}
}

func Tempdir() string { return tempdir }

func Inited() bool { return inited }
