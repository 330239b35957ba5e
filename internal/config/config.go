// Package config loads zoomify.yaml through viper.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/zoomify/zoomify/internal/hotkey"
)

// FileName is the config file name searched for in the config directories.
const FileName = "zoomify"

// EnvPrefix prefixes environment overrides, e.g. ZOOMIFY_VIEWER_ZOOM_STEP.
const EnvPrefix = "ZOOMIFY"

type Config struct {
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat     string `mapstructure:"log_format" yaml:"log_format"`
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`

	// Hotkey is the chord the daemon grabs to open the magnifier.
	Hotkey string `mapstructure:"hotkey" yaml:"hotkey"`

	Viewer Viewer `mapstructure:"viewer" yaml:"viewer"`
}

// Viewer holds the magnifier's camera and spotlight limits.
type Viewer struct {
	ZoomMin            float64 `mapstructure:"zoom_min" yaml:"zoom_min"`
	ZoomMax            float64 `mapstructure:"zoom_max" yaml:"zoom_max"`
	ZoomStep           float64 `mapstructure:"zoom_step" yaml:"zoom_step"`
	SpotlightRadius    float64 `mapstructure:"spotlight_radius" yaml:"spotlight_radius"`
	SpotlightRadiusMin float64 `mapstructure:"spotlight_radius_min" yaml:"spotlight_radius_min"`
	SpotlightRadiusMax float64 `mapstructure:"spotlight_radius_max" yaml:"spotlight_radius_max"`
	ShowTips           bool    `mapstructure:"show_tips" yaml:"show_tips"`
	ShowDebug          bool    `mapstructure:"show_debug" yaml:"show_debug"`
	Fullscreen         bool    `mapstructure:"fullscreen" yaml:"fullscreen"`
	VSync              bool    `mapstructure:"vsync" yaml:"vsync"`
}

func Default() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
		Hotkey:        hotkey.DefaultChord,
		Viewer: Viewer{
			ZoomMin:            0.01,
			ZoomMax:            100,
			ZoomStep:           0.25,
			SpotlightRadius:    100,
			SpotlightRadiusMin: 1,
			SpotlightRadiusMax: 500,
			ShowTips:           true,
			Fullscreen:         true,
			VSync:              true,
		},
	}
}

// Load reads cfgFile, or zoomify.yaml from the config directories when
// cfgFile is empty. A missing default file is not an error.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, dir := range configDirs() {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_max_size_mb", cfg.LogMaxSizeMB)
	v.SetDefault("log_max_backups", cfg.LogMaxBackups)
	v.SetDefault("hotkey", cfg.Hotkey)
	v.SetDefault("viewer.zoom_min", cfg.Viewer.ZoomMin)
	v.SetDefault("viewer.zoom_max", cfg.Viewer.ZoomMax)
	v.SetDefault("viewer.zoom_step", cfg.Viewer.ZoomStep)
	v.SetDefault("viewer.spotlight_radius", cfg.Viewer.SpotlightRadius)
	v.SetDefault("viewer.spotlight_radius_min", cfg.Viewer.SpotlightRadiusMin)
	v.SetDefault("viewer.spotlight_radius_max", cfg.Viewer.SpotlightRadiusMax)
	v.SetDefault("viewer.show_tips", cfg.Viewer.ShowTips)
	v.SetDefault("viewer.show_debug", cfg.Viewer.ShowDebug)
	v.SetDefault("viewer.fullscreen", cfg.Viewer.Fullscreen)
	v.SetDefault("viewer.vsync", cfg.Viewer.VSync)
}

// configDirs lists $XDG_CONFIG_HOME/zoomify then ~/.config/zoomify.
func configDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "zoomify"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".config", "zoomify")
		if len(dirs) == 0 || dirs[0] != dir {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
