package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/spf13/viper"
)

// ThemeChoice is the theme selected by the user.
type ThemeChoice string

const (
	ThemeDark   ThemeChoice = "dark"
	ThemeLight  ThemeChoice = "light"
	ThemeSystem ThemeChoice = "system"
)

type Config struct {
	Theme             ThemeChoice    `json:"theme" mapstructure:"theme"`
	StartMinimized    bool           `json:"startMinimized" mapstructure:"startMinimized"`
	FlmPath           string         `json:"flmPath" mapstructure:"flmPath"`                     // runtime executable or its install directory
	LastSelectedModel string         `json:"lastSelectedModel" mapstructure:"lastSelectedModel"` // model name, preset id or empty
	ServerOptions     ServerOptions  `json:"serverOptions" mapstructure:"serverOptions"`
	UserPresets       []ServerPreset `json:"userPresets,omitempty" mapstructure:"userPresets"`
	LogLevel          string         `json:"logLevel" mapstructure:"logLevel"`
	LogFilePath       string         `json:"logFilePath" mapstructure:"logFilePath"`
}

// EnvPrefix prefixes environment variables that override file values, e.g. FLMC_FLMPATH.
const EnvPrefix = "FLMC"

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Theme:             ThemeDark,
		StartMinimized:    false,
		FlmPath:           "flm",
		LastSelectedModel: "",
		ServerOptions:     DefaultServerOptions(),
		LogLevel:          "info",
		LogFilePath:       "",
	}
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("theme", string(d.Theme))
	v.SetDefault("startMinimized", d.StartMinimized)
	v.SetDefault("flmPath", d.FlmPath)
	v.SetDefault("lastSelectedModel", d.LastSelectedModel)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logFilePath", d.LogFilePath)

	o := d.ServerOptions
	v.SetDefault("serverOptions.pmode", string(o.PMode))
	v.SetDefault("serverOptions.ctxLen", o.CtxLen)
	v.SetDefault("serverOptions.port", o.Port)
	v.SetDefault("serverOptions.host", o.Host)
	v.SetDefault("serverOptions.asr", o.ASR)
	v.SetDefault("serverOptions.embed", o.Embed)
	v.SetDefault("serverOptions.socket", o.Socket)
	v.SetDefault("serverOptions.qLen", o.QLen)
	v.SetDefault("serverOptions.cors", o.CORS)
	v.SetDefault("serverOptions.preemption", o.Preemption)
	return v
}

// Load reads the config at path, merging saved values over the defaults.
// A missing file is created with the defaults.
func Load(path string) (Config, error) {
	logging.DebugLogger.Debug().Msgf("Loading config from: %s", path)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logging.DebugLogger.Debug().Msg("Config file does not exist, creating with default values")
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			logging.ErrorLogger.Error().Msgf("Failed to save default config: %v", err)
			return Config{}, fmt.Errorf("failed to save default config: %w", err)
		}
		return decode(newViper(path))
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to read config file: %v", err)
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to decode config file: %v", err)
		return Config{}, fmt.Errorf("failed to decode config file: %w", err)
	}
	if !cfg.ServerOptions.PMode.Valid() {
		logging.WarnLogger.Warn().Msgf("Unknown performance mode %q in config, using %q", cfg.ServerOptions.PMode, Performance)
		cfg.ServerOptions.PMode = Performance
	}
	switch cfg.Theme {
	case ThemeDark, ThemeLight, ThemeSystem:
	default:
		cfg.Theme = ThemeDark
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, creating the directory if needed.
func Save(path string, cfg Config) error {
	logging.DebugLogger.Debug().Msgf("Saving config to: %s", path)

	data, err := Marshal(cfg)
	if err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to encode config: %v", err)
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to create config directory: %v", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logging.ErrorLogger.Error().Msgf("Failed to write config file: %v", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal returns the on-disk form of cfg.
func Marshal(cfg Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
