package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"patchtriage/internal/bootstrap/logging"
	"patchtriage/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Triage   TriageConfig   `mapstructure:"triage" yaml:"triage"`
	GitHub   GitHubConfig   `mapstructure:"github" yaml:"github"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Events   EventsConfig   `mapstructure:"events" yaml:"events"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
}

type AppConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Env  string `mapstructure:"env" yaml:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver"`
	DSN          string `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	LogQueries   bool   `mapstructure:"log_queries" yaml:"log_queries"`
	AutoMigrate  bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

type TriageConfig struct {
	DefaultRepoOwner string `mapstructure:"default_repo_owner" yaml:"default_repo_owner"`
	DefaultRepo      string `mapstructure:"default_repo" yaml:"default_repo"`
	SystemUserEmail  string `mapstructure:"system_user_email" yaml:"system_user_email"`
	LeaderboardSize  int    `mapstructure:"leaderboard_size" yaml:"leaderboard_size"`
}

type GitHubConfig struct {
	APIToken          string  `mapstructure:"api_token" yaml:"api_token"`
	AppID             int64   `mapstructure:"app_id" yaml:"app_id"`
	InstallationID    int64   `mapstructure:"installation_id" yaml:"installation_id"`
	PrivateKeyPath    string  `mapstructure:"private_key_path" yaml:"private_key_path"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	BatchSize         int     `mapstructure:"batch_size" yaml:"batch_size"`
}

type CacheConfig struct {
	Driver           string        `mapstructure:"driver" yaml:"driver"`
	RedisAddr        string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword    string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB          int           `mapstructure:"redis_db" yaml:"redis_db"`
	DownloadTokenTTL time.Duration `mapstructure:"download_token_ttl" yaml:"download_token_ttl"`
}

type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (configFile != "" && isMissingFile(err)) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env", slog.String("config_file", configFile))
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("cache_driver", cfg.Cache.Driver),
	)

	return cfg, nil
}

// Validate rejects settings that cannot produce a working application.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	switch strings.ToLower(c.Cache.Driver) {
	case "database", "sqlite":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return errors.New("cache.redis_addr is required for the redis cache driver")
		}
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Cache.Driver)
	}
	if c.Cache.DownloadTokenTTL <= 0 {
		return errors.New("cache.download_token_ttl must be positive")
	}
	if c.GitHub.RequestsPerSecond < 0 {
		return errors.New("github.requests_per_second must not be negative")
	}
	return nil
}

// isMissingFile covers an explicit --config path that does not exist; viper
// reports that as a plain fs error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no such file")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "patchtriage")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".patchtriage/triage.sqlite")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.log_queries", false)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("triage.default_repo_owner", "discourse")
	v.SetDefault("triage.default_repo", "discourse")
	v.SetDefault("triage.system_user_email", "system@patchtriage.local")
	v.SetDefault("triage.leaderboard_size", 10)
	v.SetDefault("github.api_token", "")
	v.SetDefault("github.app_id", 0)
	v.SetDefault("github.installation_id", 0)
	v.SetDefault("github.private_key_path", "")
	v.SetDefault("github.requests_per_second", 1.0)
	v.SetDefault("github.base_url", "")
	v.SetDefault("github.batch_size", 100)
	v.SetDefault("cache.driver", "database")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.download_token_ttl", "10m")
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "patchtriage")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "10s")
}
