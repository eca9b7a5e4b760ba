package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/herald"
	"github.com/xraph/herald/api"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/store/memory"
	"github.com/xraph/herald/store/sqlite"
)

// Config is the service configuration. Every key can be overridden by an
// environment variable: "server.addr" becomes HERALD_SERVER_ADDR.
type Config struct {
	Server ServerConfig  `mapstructure:"server"`
	Log    LogConfig     `mapstructure:"log"`
	Store  StoreConfig   `mapstructure:"store"`
	CORS   api.Config    `mapstructure:"cors"`
	Herald herald.Config `mapstructure:"herald"`
}

// StoreConfig selects the persistence backend. Only sqlite keeps pending
// retries across restarts.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory | sqlite
	Path   string `mapstructure:"path"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// loadConfig reads defaults, then the file at path when given, then the
// environment.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HERALD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	def := herald.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "herald.db")

	v.SetDefault("cors.allowed_origins", []string{})

	v.SetDefault("herald.concurrency", def.Concurrency)
	v.SetDefault("herald.poll_interval", def.PollInterval)
	v.SetDefault("herald.batch_size", def.BatchSize)
	v.SetDefault("herald.claim_lease", def.ClaimLease)
	v.SetDefault("herald.user_agent", def.UserAgent)
	v.SetDefault("herald.retry_policy", def.RetryPolicy)
	v.SetDefault("herald.default_retry_count", def.DefaultRetryCount)
	v.SetDefault("herald.default_timeout", def.DefaultTimeout)
	v.SetDefault("herald.strict_event_types", def.StrictEventTypes)
	v.SetDefault("herald.shutdown_timeout", def.ShutdownTimeout)
}

// openStore connects the configured backend and runs its migrations.
func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	var st store.Store
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		st = memory.New()
	case "sqlite":
		if cfg.Path == "" {
			return nil, errors.New("store.path is required for the sqlite driver")
		}
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, fmt.Errorf("unknown store driver %q (want memory or sqlite)", cfg.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// newLogger builds the process logger from cfg.
func newLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
