package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"wiimwatch/internal/settings"
)

const envPrefix = "WIIM_"

// Config represents configuration data for the client.
type Config struct {
	AppEnv         string `yaml:"app_env"`
	LogLevelName   string `yaml:"log_level"`
	SettingsPath   string `yaml:"settings_path"`
	ServerAddress  string `yaml:"server_address"`
	UpdateInterval int    `yaml:"update_interval"`
	APIKey         string `yaml:"api_key"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`
	HTTP           HTTP   `yaml:"http"`
	Console        Toggle `yaml:"console"`
	MQTT           MQTT   `yaml:"mqtt"`

	LogLevel slog.Level `yaml:"-"`
}

// HTTP configures the embedded web screen.
type HTTP struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Toggle switches an optional component.
type Toggle struct {
	Enabled bool `yaml:"enabled"`
}

// MQTT configures snapshot forwarding.
type MQTT struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		AppEnv:         "dev",
		LogLevelName:   "info",
		LogLevel:       slog.LevelInfo,
		SettingsPath:   filepath.Join(".dist", "settings.json"),
		ServerAddress:  "http://localhost:8000/api/",
		UpdateInterval: settings.DefaultUpdateInterval,
		RequestTimeout: 10,
		HTTP:           HTTP{Enabled: true, Addr: ":8080"},
		Console:        Toggle{Enabled: true},
		MQTT: MQTT{
			Broker:      "localhost",
			Port:        1883,
			ClientID:    "wiimwatch",
			TopicPrefix: "wiim",
		},
	}
}

// Load reads configuration from a yaml file, then applies .env and WIIM_*
// environment overrides. A missing file falls back to defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return finish(cfg)
}

// Seed returns the settings used until the user saves their own.
func (c Config) Seed() settings.Settings {
	return settings.Settings{
		ServerAddress:  c.ServerAddress,
		UpdateInterval: c.UpdateInterval,
		APIKey:         c.APIKey,
	}
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", envPrefix, key, v, err)
		}
		*dst = n
		return nil
	}
	setBool := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", envPrefix, key, v, err)
		}
		*dst = b
		return nil
	}

	setString("APP_ENV", &cfg.AppEnv)
	setString("LOG_LEVEL", &cfg.LogLevelName)
	setString("SETTINGS_PATH", &cfg.SettingsPath)
	setString("SERVER_ADDRESS", &cfg.ServerAddress)
	setString("API_KEY", &cfg.APIKey)
	setString("HTTP_ADDR", &cfg.HTTP.Addr)
	setString("MQTT_BROKER", &cfg.MQTT.Broker)
	setString("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	setString("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)

	for key, dst := range map[string]*int{
		"UPDATE_INTERVAL":         &cfg.UpdateInterval,
		"REQUEST_TIMEOUT_SECONDS": &cfg.RequestTimeout,
		"MQTT_PORT":               &cfg.MQTT.Port,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*bool{
		"HTTP_ENABLED":    &cfg.HTTP.Enabled,
		"CONSOLE_ENABLED": &cfg.Console.Enabled,
		"MQTT_ENABLED":    &cfg.MQTT.Enabled,
	} {
		if err := setBool(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func finish(cfg Config) (Config, error) {
	defaults := DefaultConfig()

	cfg.AppEnv = strings.TrimSpace(cfg.AppEnv)
	if cfg.AppEnv == "" {
		cfg.AppEnv = defaults.AppEnv
	}
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid app_env %q (allowed: dev, prod)", cfg.AppEnv)
	}

	level, err := ParseLogLevel(cfg.LogLevelName)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	if cfg.SettingsPath == "" {
		cfg.SettingsPath = defaults.SettingsPath
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = defaults.UpdateInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.HTTP.Enabled && cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = defaults.HTTP.Addr
	}
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return Config{}, errors.New("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.Port <= 0 {
			cfg.MQTT.Port = defaults.MQTT.Port
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = defaults.MQTT.ClientID
		}
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = defaults.MQTT.TopicPrefix
		}
	}
	return cfg, nil
}

// ParseLogLevel maps a level name to slog.Level. Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q (allowed: debug, info, warn, error)", s)
	}
}
