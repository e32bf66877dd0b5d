// Package config loads server configuration from an optional YAML file
// with TRASH_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Storage StorageConfig `mapstructure:"storage"`
	Game    GameConfig    `mapstructure:"game"`
}

// ServerConfig configures the HTTP/WebSocket gateway.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects the persistence backend. An empty path keeps
// saves in process memory.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// GameConfig tunes the engine.
type GameConfig struct {
	UndoLimit   int           `mapstructure:"undo_limit"`
	AIMoveDelay time.Duration `mapstructure:"ai_move_delay"`
	// Seed fixes the shuffle for reproducible matches; zero uses the clock.
	Seed int64 `mapstructure:"seed"`
}

// Load reads the configuration file at path, if any, applies environment
// overrides and fills in defaults. A missing file is only an error when
// the path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("storage.path", "")
	v.SetDefault("game.undo_limit", 50)
	v.SetDefault("game.ai_move_delay", 600*time.Millisecond)
	v.SetDefault("game.seed", 0)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
