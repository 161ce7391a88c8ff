// Package config loads docqa settings from defaults, an optional YAML
// file, DOCQA_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all client settings.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Poll    PollConfig    `mapstructure:"poll"`
	Player  PlayerConfig  `mapstructure:"player"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig locates the backend API.
type ServerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollConfig controls the dashboard refresh.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// PlayerConfig configures the mpv playback element.
type PlayerConfig struct {
	MPVPath   string `mapstructure:"mpv_path"`
	SocketDir string `mapstructure:"socket_dir"`
}

// StorageConfig locates the credential database.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig controls the log file. The TUI owns the terminal, so logs never
// go to stdout.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Debug bool   `mapstructure:"debug"`
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"server": "server.base_url",
	"debug":  "log.debug",
}

// Dir returns the per-user docqa directory.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "docqa")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.base_url", "http://localhost:8080/api")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("poll.interval", 5*time.Second)
	v.SetDefault("player.mpv_path", "mpv")
	v.SetDefault("player.socket_dir", os.TempDir())
	v.SetDefault("storage.path", filepath.Join(Dir(), "docqa.sqlite"))
	v.SetDefault("log.path", filepath.Join(Dir(), "docqa.log"))
	v.SetDefault("log.debug", false)
}

// Load reads configuration. When path is empty, config.yaml is searched in
// the per-user directory and the working directory and may be absent.
// Flags present in FlagKeys override everything else when set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("DOCQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url %q must be an http(s) URL", c.Server.BaseURL)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	return nil
}
