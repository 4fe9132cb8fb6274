// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "GEOFENCE"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Radar   RadarConfig   `mapstructure:"radar"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Storage StorageConfig `mapstructure:"storage"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Log     LogConfig     `mapstructure:"log"`

	// Source is the config file that was read, empty when running on defaults.
	Source string `mapstructure:"-"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RadarConfig struct {
	ThresholdCM      float64       `mapstructure:"threshold_cm"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	DefaultDeviceID  string        `mapstructure:"default_device_id"`
	DefaultSeverity  string        `mapstructure:"default_severity"`
	AutoLedger       bool          `mapstructure:"auto_ledger"`
}

type NotifyConfig struct {
	Cooldown    time.Duration `mapstructure:"cooldown"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	BaseURL     string        `mapstructure:"base_url"`
	BotToken    string        `mapstructure:"bot_token"`
	ChatID      string        `mapstructure:"chat_id"`
}

// Enabled reports whether gateway credentials are present.
func (n NotifyConfig) Enabled() bool {
	return n.BotToken != "" && n.ChatID != ""
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type MQTTConfig struct {
	Broker         string `mapstructure:"broker"`
	ClientID       string `mapstructure:"client_id"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	QoS            byte   `mapstructure:"qos"`
	TopicLive      string `mapstructure:"topic_live"`
	TopicHeartbeat string `mapstructure:"topic_heartbeat"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config.yaml from path (if present), then environment variables
// prefixed GEOFENCE_, e.g. GEOFENCE_NOTIFY_BOT_TOKEN. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values once at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Radar.ThresholdCM <= 0 {
		errs = append(errs, fmt.Errorf("radar.threshold_cm must be > 0, got %v", c.Radar.ThresholdCM))
	}
	if c.Radar.HeartbeatTimeout <= 0 {
		errs = append(errs, errors.New("radar.heartbeat_timeout must be > 0"))
	}
	if c.Radar.DefaultDeviceID == "" {
		errs = append(errs, errors.New("radar.default_device_id must not be empty"))
	}
	switch c.Radar.DefaultSeverity {
	case "low", "medium", "high":
	default:
		errs = append(errs, fmt.Errorf("radar.default_severity must be low, medium or high, got %q", c.Radar.DefaultSeverity))
	}
	if c.Notify.Cooldown <= 0 {
		errs = append(errs, errors.New("notify.cooldown must be > 0"))
	}
	if c.Notify.SendTimeout <= 0 {
		errs = append(errs, errors.New("notify.send_timeout must be > 0"))
	}
	if c.Redis.Addr != "" && c.Redis.OpTimeout <= 0 {
		errs = append(errs, errors.New("redis.op_timeout must be > 0"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("radar.threshold_cm", 30.0)
	v.SetDefault("radar.heartbeat_timeout", 15*time.Second)
	v.SetDefault("radar.default_device_id", "radar_01")
	v.SetDefault("radar.default_severity", "high")
	v.SetDefault("radar.auto_ledger", false)

	v.SetDefault("notify.cooldown", 60*time.Second)
	v.SetDefault("notify.send_timeout", 10*time.Second)
	v.SetDefault("notify.base_url", "https://api.telegram.org")
	v.SetDefault("notify.bot_token", "")
	v.SetDefault("notify.chat_id", "")

	v.SetDefault("storage.path", "./data/geofence.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.op_timeout", 200*time.Millisecond)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "geofence-gateway")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.topic_live", "radar/+/live")
	v.SetDefault("mqtt.topic_heartbeat", "radar/+/heartbeat")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
