// Package config loads the agent configuration and the monitor preferences from a
// YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigFile is the config file used when none is given.
	DefaultConfigFile = "panelagent.yaml"
	envPrefix         = "PANELAGENT"
)

var ErrNoServer = errors.New("either server.url or broker.enabled must be set")

type Config struct {
	LogLevel    string           `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	Server      ServerConfig     `mapstructure:"server" yaml:"server"`
	Broker      BrokerConfig     `mapstructure:"broker" yaml:"broker"`
	HTTP        HTTPConfig       `mapstructure:"http" yaml:"http"`
	Hardware    HardwareConfig   `mapstructure:"hardware" yaml:"hardware"`
	CommandLog  CommandLogConfig `mapstructure:"command_log" yaml:"command_log"`
	Preferences map[string]any   `mapstructure:"preferences" yaml:"preferences"`
}

type ServerConfig struct {
	// URL of an external MQTT broker. Empty uses the embedded broker.
	URL         string `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id" validate:"required"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix" validate:"required"`
	KeepAlive   uint16 `mapstructure:"keep_alive" yaml:"keep_alive" validate:"gte=1"`
}

type BrokerConfig struct {
	Enabled bool         `mapstructure:"enabled" yaml:"enabled"`
	Address string       `mapstructure:"address" yaml:"address"`
	Users   []UserConfig `mapstructure:"users" yaml:"users" validate:"dive"`
}

type UserConfig struct {
	Username string `mapstructure:"username" yaml:"username" validate:"required"`
	Password string `mapstructure:"password" yaml:"password" validate:"required"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address" yaml:"address" validate:"required"`
}

type HardwareConfig struct {
	PowerSupplyPath    string        `mapstructure:"power_supply_path" yaml:"power_supply_path"`
	PowerWatchInterval time.Duration `mapstructure:"power_watch_interval" yaml:"power_watch_interval" validate:"gt=0"`
	TemperatureEnabled bool          `mapstructure:"temperature" yaml:"temperature"`
	CameraDevice       string        `mapstructure:"camera_device" yaml:"camera_device"`
	CameraWidth        int           `mapstructure:"camera_width" yaml:"camera_width" validate:"gte=0"`
	CameraHeight       int           `mapstructure:"camera_height" yaml:"camera_height" validate:"gte=0"`
}

type CommandLogConfig struct {
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries" validate:"gte=0"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			ClientID:    "panelagent",
			TopicPrefix: "panel",
			KeepAlive:   20,
		},
		Broker: BrokerConfig{
			Enabled: true,
			Address: ":1883",
		},
		HTTP: HTTPConfig{
			Address: "127.0.0.1:8080",
		},
		Hardware: HardwareConfig{
			PowerSupplyPath:    "",
			PowerWatchInterval: 2 * time.Second,
			TemperatureEnabled: true,
			CameraDevice:       "",
			CameraWidth:        320,
			CameraHeight:       240,
		},
		CommandLog: CommandLogConfig{
			MaxEntries: 200,
		},
		Preferences: DefaultPreferences(),
	}
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("server.client_id", def.Server.ClientID)
	v.SetDefault("server.topic_prefix", def.Server.TopicPrefix)
	v.SetDefault("server.keep_alive", def.Server.KeepAlive)
	v.SetDefault("broker.enabled", def.Broker.Enabled)
	v.SetDefault("broker.address", def.Broker.Address)
	v.SetDefault("http.address", def.HTTP.Address)
	v.SetDefault("hardware.power_supply_path", def.Hardware.PowerSupplyPath)
	v.SetDefault("hardware.power_watch_interval", def.Hardware.PowerWatchInterval)
	v.SetDefault("hardware.temperature", def.Hardware.TemperatureEnabled)
	v.SetDefault("hardware.camera_width", def.Hardware.CameraWidth)
	v.SetDefault("hardware.camera_height", def.Hardware.CameraHeight)
	v.SetDefault("command_log.max_entries", def.CommandLog.MaxEntries)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return parseConfig(v)
}

func parseConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid config format: %w", err)
	}
	if cfg.Preferences == nil {
		cfg.Preferences = map[string]any{}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Server.URL == "" && !cfg.Broker.Enabled {
		return ErrNoServer
	}
	return nil
}

// Prefs returns the monitor preferences of the config.
func (c *Config) Prefs() Preferences {
	return NewPreferences(c.Preferences)
}
