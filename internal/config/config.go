package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"clicks/internal/clicks"
)

const (
	SourceX11  = "x11"
	SourceNone = "none" // only socket-injected clicks
)

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

type Config struct {
	DatabasePath string        `mapstructure:"database_path"`
	SocketPath   string        `mapstructure:"socket_path"`
	Source       string        `mapstructure:"source"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Clicks       clicks.Config `mapstructure:"clicks"`
	Log          LogConfig     `mapstructure:"log"`
}

// Loader reads the configuration and keeps the viper instance around so the
// file can be watched for changes.
type Loader struct {
	v *viper.Viper
}

func NewLoader(configPath string) *Loader {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/clicks")
		v.AddConfigPath("/etc/clicks/")
	}

	v.SetEnvPrefix("CLICKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_path", "clicks.db")
	v.SetDefault("socket_path", filepath.Join(os.TempDir(), "clicks.sock"))
	v.SetDefault("source", SourceX11)
	v.SetDefault("poll_interval", "10ms")
	v.SetDefault("clicks.delay", clicks.DefaultDelay.String())
	v.SetDefault("clicks.click_count", clicks.DefaultClickCount)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	return &Loader{v: v}
}

// LoadConfig reads configuration from configPath, or from the default search
// paths when configPath is empty. A missing config file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		slog.Info("config file not found, using defaults")
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		millisecondsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := l.v.Unmarshal(&cfg, hook); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

// millisecondsHookFunc reads bare numbers as milliseconds when decoding a
// time.Duration, so "delay: 300" means 300ms. Strings with a unit are left
// to StringToTimeDurationHookFunc.
func millisecondsHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) || f == t {
			return data, nil
		}
		switch f.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Millisecond, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Millisecond, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Millisecond)), nil
		case reflect.String:
			raw := strings.TrimSpace(data.(string))
			if raw == "" {
				return data, nil
			}
			if ms, err := strconv.ParseFloat(raw, 64); err == nil {
				return time.Duration(ms * float64(time.Millisecond)), nil
			}
			if _, err := time.ParseDuration(raw); err != nil {
				return nil, fmt.Errorf("invalid duration %q: use milliseconds or a unit such as 300ms", raw)
			}
		}
		return data, nil
	}
}

// normalize replaces invalid values with defaults instead of failing.
func (c *Config) normalize() {
	c.Clicks = clicks.DefaultConfig().Merge(c.Clicks)
	if c.PollInterval < time.Millisecond {
		slog.Warn("poll_interval too low, setting to 10ms", "poll_interval", c.PollInterval)
		c.PollInterval = 10 * time.Millisecond
	}
	if c.Source != SourceX11 && c.Source != SourceNone {
		slog.Warn("invalid source, defaulting to x11", "source", c.Source)
		c.Source = SourceX11
	}
}

// Watch calls onChange with the re-read configuration whenever the config
// file changes. It is a no-op when no config file was found.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			slog.Warn("failed to reload config", "file", e.Name, "error", err)
			return
		}
		slog.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		onChange(cfg)
	})
	l.v.WatchConfig()
}
