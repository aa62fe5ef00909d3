// Package config loads the application configuration and sets up logging.
// Configuration lives in $XDG_CONFIG_HOME/fincast/config.yaml; logs and the
// persistent device id live under the state directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Player   PlayerConfig   `mapstructure:"player" yaml:"player"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig points at the Jellyfin server.
type ServerConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	Token      string `mapstructure:"token" yaml:"token"`
	UserID     string `mapstructure:"user_id" yaml:"user_id"`
	DeviceName string `mapstructure:"device_name" yaml:"device_name"`
}

// PlayerConfig controls the spawned mpv process.
type PlayerConfig struct {
	LoadUserConfig bool     `mapstructure:"load_user_config" yaml:"load_user_config"`
	Fullscreen     bool     `mapstructure:"fullscreen" yaml:"fullscreen"`
	ExtraArgs      []string `mapstructure:"extra_args" yaml:"extra_args"`
}

// PlaybackConfig tunes the playback core.
type PlaybackConfig struct {
	LoadTimeoutSeconds int  `mapstructure:"load_timeout_seconds" yaml:"load_timeout_seconds"`
	SeekStepSeconds    int  `mapstructure:"seek_step_seconds" yaml:"seek_step_seconds"`
	VolumeStep         int  `mapstructure:"volume_step" yaml:"volume_step"`
	Autoplay           bool `mapstructure:"autoplay" yaml:"autoplay"`
	RemoteControl      bool `mapstructure:"remote_control" yaml:"remote_control"`
}

// LoggingConfig controls the slog setup and file rotation.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// GetConfigDir returns the fincast config directory, honoring
// XDG_CONFIG_HOME.
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fincast")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "fincast"
	}
	return filepath.Join(home, ".config", "fincast")
}

func getStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "fincast")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "fincast"
	}
	return filepath.Join(home, ".local", "state", "fincast")
}

// InitializeDirs creates the config and state directories.
func InitializeDirs() error {
	for _, dir := range []string{GetConfigDir(), getStateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// SetDefaults populates a viper instance with the default configuration.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "")
	v.SetDefault("server.token", "")
	v.SetDefault("server.user_id", "")
	v.SetDefault("server.device_name", defaultDeviceName())

	v.SetDefault("player.load_user_config", false)
	v.SetDefault("player.fullscreen", false)
	v.SetDefault("player.extra_args", []string{})

	v.SetDefault("playback.load_timeout_seconds", 30)
	v.SetDefault("playback.seek_step_seconds", 10)
	v.SetDefault("playback.volume_step", 5)
	v.SetDefault("playback.autoplay", true)
	v.SetDefault("playback.remote_control", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", filepath.Join(getStateDir(), "fincast.log"))
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)
}

func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "fincast"
	}
	return "fincast (" + host + ")"
}

// Load reads the configuration from the given file, or from the default
// location when path is empty. Environment variables with the FINCAST_
// prefix override file values. The viper instance is returned so the caller
// can watch the file for changes.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetConfigDir())
	}

	v.SetEnvPrefix("FINCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
		// Missing file is fine; defaults plus env carry us.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, v, nil
}

// Watch re-reads the config file on change and invokes fn with the fresh
// configuration. Parse failures keep the previous configuration.
func Watch(v *viper.Viper, fn func(*Config)) {
	v.OnConfigChange(func(fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		fn(&cfg)
	})
	v.WatchConfig()
}

// SaveDefaultConfig writes a commented starter config to the given path.
// Refuses to overwrite an existing file.
func SaveDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("build defaults: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	header := "# fincast configuration\n# server.url, server.token and server.user_id are required for playback.\n"
	return os.WriteFile(path, append([]byte(header), data...), 0o600)
}

// DeviceID returns the persistent device id, generating one on first use.
// Jellyfin uses it to tell this installation apart from other clients.
func DeviceID() (string, error) {
	path := filepath.Join(getStateDir(), "device_id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
