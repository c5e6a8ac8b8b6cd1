// Package config loads server settings from an optional settings file,
// environment variables and built-in defaults.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Addr string `mapstructure:"addr"`
	MOTD string `mapstructure:"motd"`
}

type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LimitsConfig struct {
	TotalMaxConnections     int           `mapstructure:"totalMaxConnections"`
	MaxConnectionsPerWindow int           `mapstructure:"maxConnectionsPerWindow"`
	ConnectionWindow        time.Duration `mapstructure:"connectionWindow"`
	MaxConcurrentPerIP      int           `mapstructure:"maxConcurrentPerIP"`
	MaxMessagesPerSecond    int           `mapstructure:"maxMessagesPerSecond"`
	NickChangeCooldown      time.Duration `mapstructure:"nickChangeCooldown"`
}

type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type HistoryConfig struct {
	Limit int `mapstructure:"limit"`
}

type StoreConfig struct {
	Path       string `mapstructure:"path"`
	BansPath   string `mapstructure:"bansPath"`
	AdminsPath string `mapstructure:"adminsPath"`
}

type WebRTCConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	MaxParticipants  int  `mapstructure:"maxParticipants"`
	AllowVideo       bool `mapstructure:"allowVideo"`
	AllowScreenShare bool `mapstructure:"allowScreenShare"`
	ForceRelay       bool `mapstructure:"forceRelay"`
}

type LoginConfig struct {
	AttemptLimit  int           `mapstructure:"attemptLimit"`
	BlockDuration time.Duration `mapstructure:"blockDuration"`
}

type BlockConfig struct {
	Duration time.Duration `mapstructure:"duration"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	History   HistoryConfig   `mapstructure:"history"`
	Store     StoreConfig     `mapstructure:"store"`
	WebRTC    WebRTCConfig    `mapstructure:"webrtc"`
	Login     LoginConfig     `mapstructure:"login"`
	Block     BlockConfig     `mapstructure:"block"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "Unnamed Server")
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.motd", "")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("limits.totalMaxConnections", 100)
	v.SetDefault("limits.maxConnectionsPerWindow", 2)
	v.SetDefault("limits.connectionWindow", "30s")
	v.SetDefault("limits.maxConcurrentPerIP", 10)
	v.SetDefault("limits.maxMessagesPerSecond", 5)
	v.SetDefault("limits.nickChangeCooldown", "60s")
	v.SetDefault("heartbeat.interval", "30s")
	v.SetDefault("heartbeat.timeout", "60s")
	v.SetDefault("history.limit", 100)
	v.SetDefault("store.path", "chat.db")
	v.SetDefault("store.bansPath", "banned.json")
	v.SetDefault("store.adminsPath", "admins.json")
	v.SetDefault("webrtc.enabled", true)
	v.SetDefault("webrtc.maxParticipants", 8)
	v.SetDefault("webrtc.allowVideo", false)
	v.SetDefault("webrtc.allowScreenShare", false)
	v.SetDefault("webrtc.forceRelay", false)
	v.SetDefault("login.attemptLimit", 5)
	v.SetDefault("login.blockDuration", "1h")
	v.SetDefault("block.duration", "12h")
}

// Load reads configuration from a settings file and environment variables.
// A missing settings file is not an error; defaults apply.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		logger.Warn("settings file not found, relying on defaults and environment", "file", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, used by tests that do not want
// to touch the filesystem or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}
