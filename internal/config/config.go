package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv                string        `mapstructure:"app_env"`
	DBDriver              string        `mapstructure:"db_driver"`
	DBPath                string        `mapstructure:"db_path"`
	RedisAddr             string        `mapstructure:"redis_addr"`
	RedisPassword         string        `mapstructure:"redis_password"`
	RedisDB               int           `mapstructure:"redis_db"`
	RedisKeyPrefix        string        `mapstructure:"redis_key_prefix"`
	GRPCPort              int           `mapstructure:"grpc_port"`
	GRPCReflectionEnabled bool          `mapstructure:"grpc_reflection_enabled"`
	HTTPPort              int           `mapstructure:"http_port"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
	RefreshInterval       time.Duration `mapstructure:"ranking_refresh_interval"`
	RefreshWorkers        int           `mapstructure:"refresh_workers"`
	SnapshotRetention     int           `mapstructure:"snapshot_retention"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	WriteTimeout          time.Duration `mapstructure:"write_timeout"`
	LogFile               string        `mapstructure:"log_file"`
	LogMaxSizeMB          int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups         int           `mapstructure:"log_max_backups"`
}

var defaults = map[string]any{
	"app_env":                  "development",
	"db_driver":                "sqlite3",
	"db_path":                  "./data/solargrade.db",
	"redis_addr":               "localhost:6379",
	"redis_password":           "",
	"redis_db":                 0,
	"redis_key_prefix":         "solargrade:",
	"grpc_port":                50051,
	"grpc_reflection_enabled":  false,
	"http_port":                8080,
	"cache_ttl":                10 * time.Minute,
	"ranking_refresh_interval": 30 * time.Minute,
	"refresh_workers":          8,
	"snapshot_retention":       48,
	"read_timeout":             5 * time.Second,
	"write_timeout":            time.Second,
	"log_file":                 "",
	"log_max_size_mb":          100,
	"log_max_backups":          5,
}

// Load layers defaults, the optional YAML file at configFile and environment
// variables (APP_ENV, DB_PATH, RANKING_REFRESH_INTERVAL, ...), in that order
// of increasing precedence.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("db_driver: unsupported driver %q", c.DBDriver))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path: must be set"))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("redis_addr: must be set"))
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("grpc_port: %d out of range", c.GRPCPort))
	}
	// 0 disables the HTTP read API.
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http_port: %d out of range", c.HTTPPort))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("cache_ttl: must be positive"))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, errors.New("ranking_refresh_interval: must be positive"))
	}
	if c.RefreshWorkers < 1 {
		errs = append(errs, errors.New("refresh_workers: must be at least 1"))
	}
	// rank deltas need the previous snapshot
	if c.SnapshotRetention < 2 {
		errs = append(errs, errors.New("snapshot_retention: must keep at least 2 snapshots"))
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("read_timeout and write_timeout: must be positive"))
	}
	if c.LogFile != "" && c.LogMaxSizeMB < 1 {
		errs = append(errs, errors.New("log_max_size_mb: must be at least 1 when log_file is set"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// NewLogger creates a new Zap logger based on the config. With LogFile set,
// JSON records are also written to a size-rotated file.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg.LogFile == "" {
		return logger, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(rotator),
		zapCfg.Level,
	)

	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}
