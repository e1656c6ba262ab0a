package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Network   NetworkConfig   `toml:"network"`
	World     WorldConfig     `toml:"world"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	ID        int    `toml:"id"`
	StartTime int64  // set at boot, not from config
}

// DatabaseConfig points at PostgreSQL. An empty DSN runs the server without
// persistence.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	SaveInterval    time.Duration `toml:"save_interval"`
}

type NetworkConfig struct {
	BindAddress       string        `toml:"bind_address"`
	Path              string        `toml:"path"` // websocket upgrade path
	TickRate          time.Duration `toml:"tick_rate"`
	InQueueSize       int           `toml:"in_queue_size"`
	OutQueueSize      int           `toml:"out_queue_size"`
	MaxPacketsPerTick int           `toml:"max_packets_per_tick"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
	ReadLimit         int64         `toml:"read_limit"` // max inbound frame size in bytes
}

type WorldConfig struct {
	MapsYAML     string        `toml:"maps_yaml"`
	TileDir      string        `toml:"tile_dir"`
	ScriptsDir   string        `toml:"scripts_dir"`
	DefaultBoard string        `toml:"default_board"`
	DayCycle     time.Duration `toml:"day_cycle"` // one full dawn→night cycle
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type RateLimitConfig struct {
	Enabled          bool `toml:"enabled"`
	PacketsPerSecond int  `toml:"packets_per_second"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Network.TickRate <= 0 {
		return fmt.Errorf("network.tick_rate must be positive, got %s", c.Network.TickRate)
	}
	if c.Network.InQueueSize <= 0 || c.Network.OutQueueSize <= 0 {
		return fmt.Errorf("network queue sizes must be positive")
	}
	if c.World.DefaultBoard == "" {
		return fmt.Errorf("world.default_board is required")
	}
	return nil
}

// PacketsPerSecond is the per-session inbound limit, 0 when disabled.
func (c *Config) PacketsPerSecond() int {
	if !c.RateLimit.Enabled {
		return 0
	}
	return c.RateLimit.PacketsPerSecond
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "dungeonz",
			ID:   1,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			SaveInterval:    time.Minute,
		},
		Network: NetworkConfig{
			BindAddress:       "0.0.0.0:4567",
			Path:              "/",
			TickRate:          50 * time.Millisecond,
			InQueueSize:       64,
			OutQueueSize:      256,
			MaxPacketsPerTick: 16,
			WriteTimeout:      10 * time.Second,
			ReadLimit:         16 * 1024,
		},
		World: WorldConfig{
			MapsYAML:     "data/yaml/map_list.yaml",
			TileDir:      "map",
			ScriptsDir:   "scripts",
			DefaultBoard: "overworld",
			DayCycle:     20 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			PacketsPerSecond: 30,
		},
	}
}
