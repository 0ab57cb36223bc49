// Package config loads SDK configuration from a file and the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. REACTOR_ENGINE_DEFAULT.
const EnvPrefix = "REACTOR"

// Config holds SDK configuration.
type Config struct {
	AppID    string        `mapstructure:"app_id"`
	LogLevel string        `mapstructure:"log_level"`
	Manifest string        `mapstructure:"manifest"`
	Engine   EngineConfig  `mapstructure:"engine"`
	Loopers  LoopersConfig `mapstructure:"loopers"`
}

// EngineConfig holds script runtime selection settings.
type EngineConfig struct {
	Default               string          `mapstructure:"default"`
	Switches              map[string]bool `mapstructure:"switches"`
	EnableURLData         string          `mapstructure:"enable_url_data"`
	DisableURLData        string          `mapstructure:"disable_url_data"`
	MainProcessScriptSide bool            `mapstructure:"main_process_script_side"`
	ForceMainProcess      bool            `mapstructure:"force_main_process"`
	Supported             []string        `mapstructure:"supported"`
	SnapshotPath          string          `mapstructure:"snapshot_path"`
}

// LoopersConfig names the execution contexts.
type LoopersConfig struct {
	UI     string `mapstructure:"ui"`
	Script string `mapstructure:"script"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		AppID:    "reactor",
		LogLevel: "info",
		Engine: EngineConfig{
			Default:               "JSC",
			MainProcessScriptSide: true,
			Supported:             []string{"JSC", "QJS"},
		},
		Loopers: LoopersConfig{UI: "ui", Script: "script"},
	}
}

// Load reads configuration from path and the environment. An empty path
// reads only defaults and environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("app_id", def.AppID)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("manifest", "")
	v.SetDefault("engine.default", def.Engine.Default)
	v.SetDefault("engine.switches", map[string]bool{})
	v.SetDefault("engine.enable_url_data", "")
	v.SetDefault("engine.disable_url_data", "")
	v.SetDefault("engine.main_process_script_side", def.Engine.MainProcessScriptSide)
	v.SetDefault("engine.force_main_process", def.Engine.ForceMainProcess)
	v.SetDefault("engine.supported", def.Engine.Supported)
	v.SetDefault("engine.snapshot_path", "")
	v.SetDefault("loopers.ui", def.Loopers.UI)
	v.SetDefault("loopers.script", def.Loopers.Script)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Level maps LogLevel to a slog level. Unknown values map to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
