package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/courtside/go/internal/live/clock"
	"github.com/mcdev12/courtside/go/internal/live/gateway"
	"github.com/mcdev12/courtside/go/internal/live/session"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	NATSURL         string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSEnabled     bool          `env:"NATS_ENABLED" envDefault:"true"`
	LiveConfigPath  string        `env:"LIVE_CONFIG" envDefault:"live.yaml"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Overrides live.yaml when set.
	CheckpointInterval time.Duration `env:"CHECKPOINT_INTERVAL"`

	WSReadTimeout  time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`
	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	WSPingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
}

// liveFile is the layout of live.yaml. Zero values keep the defaults.
type liveFile struct {
	Defaults           clock.Settings `yaml:"defaults"`
	Limits             clock.Limits   `yaml:"limits"`
	TickInterval       time.Duration  `yaml:"tick_interval"`
	CheckpointInterval time.Duration  `yaml:"checkpoint_interval"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// loadSessionConfig overlays the match defaults file on session.DefaultConfig.
// A missing file is not an error.
func loadSessionConfig(path string, checkpointOverride time.Duration) (session.Config, error) {
	cfg := session.DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", path).Msg("no live config file, using defaults")
	case err != nil:
		return session.Config{}, fmt.Errorf("failed to read config file: %w", err)
	default:
		var file liveFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return session.Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
		if file.Defaults.PeriodMinutes > 0 {
			cfg.Defaults.PeriodMinutes = file.Defaults.PeriodMinutes
		}
		if file.Defaults.TotalPeriods > 0 {
			cfg.Defaults.TotalPeriods = file.Defaults.TotalPeriods
		}
		if file.Limits.MaxPeriodMinutes > 0 {
			cfg.Limits.MaxPeriodMinutes = file.Limits.MaxPeriodMinutes
		}
		if file.Limits.MaxTotalPeriods > 0 {
			cfg.Limits.MaxTotalPeriods = file.Limits.MaxTotalPeriods
		}
		if file.TickInterval > 0 {
			cfg.TickInterval = file.TickInterval
		}
		if file.CheckpointInterval > 0 {
			cfg.CheckpointInterval = file.CheckpointInterval
		}
	}

	if checkpointOverride > 0 {
		cfg.CheckpointInterval = checkpointOverride
	}
	if err := cfg.Limits.Validate(cfg.Defaults); err != nil {
		return session.Config{}, fmt.Errorf("default match settings: %w", err)
	}
	return cfg, nil
}

func gatewayConfig(cfg Config) gateway.Config {
	gw := gateway.DefaultConfig()
	gw.ConnectionConfig.ReadTimeout = cfg.WSReadTimeout
	gw.ConnectionConfig.WriteTimeout = cfg.WSWriteTimeout
	gw.ConnectionConfig.PingInterval = cfg.WSPingInterval
	return gw
}
