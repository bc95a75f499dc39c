package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. OVERWATCH_SERVER_PORT
const EnvPrefix = "OVERWATCH"

// Config is the application configuration
type Config struct {
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Email      EmailConfig      `mapstructure:"email"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

type ThresholdsConfig struct {
	Path string `mapstructure:"path"`
	// ReloadSchedule is a cron expression with seconds; empty disables it
	ReloadSchedule string `mapstructure:"reload_schedule"`
}

type AlertsConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	CooldownKey     string        `mapstructure:"cooldown_key"`
	HistoryCapacity int           `mapstructure:"history_capacity"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
}

type StreamConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	TickTimeout time.Duration `mapstructure:"tick_timeout"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	NATSSubject string        `mapstructure:"nats_subject"`
}

type CollectorConfig struct {
	CPUSampleInterval time.Duration `mapstructure:"cpu_sample_interval"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ProcessLimit      int           `mapstructure:"process_limit"`
	ProcessSortBy     string        `mapstructure:"process_sort_by"`
}

type EmailConfig struct {
	Host               string   `mapstructure:"host"`
	Port               int      `mapstructure:"port"`
	Username           string   `mapstructure:"username"`
	Password           string   `mapstructure:"password"`
	From               string   `mapstructure:"from"`
	To                 []string `mapstructure:"to"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
}

type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Name           string        `mapstructure:"name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type ArchiveConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("thresholds.path", "config/thresholds.json")
	v.SetDefault("thresholds.reload_schedule", "")

	v.SetDefault("alerts.interval", 5*time.Second)
	v.SetDefault("alerts.cooldown", 5*time.Minute)
	v.SetDefault("alerts.cooldown_key", "kind")
	v.SetDefault("alerts.history_capacity", 1000)
	v.SetDefault("alerts.dispatch_timeout", 10*time.Second)

	v.SetDefault("stream.interval", time.Second)
	v.SetDefault("stream.tick_timeout", 10*time.Second)
	v.SetDefault("stream.send_timeout", 2*time.Second)
	v.SetDefault("stream.nats_subject", "metrics.snapshot")

	v.SetDefault("collector.cpu_sample_interval", 100*time.Millisecond)
	v.SetDefault("collector.timeout", 2*time.Second)
	v.SetDefault("collector.process_limit", 10)
	v.SetDefault("collector.process_sort_by", "cpu")

	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.to", []string{})
	v.SetDefault("email.insecure_skip_verify", false)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 10*time.Second)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.name", "overwatch")
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.path", "data/alerts.db")
	v.SetDefault("archive.retention", 30*24*time.Hour)
	v.SetDefault("archive.cleanup_schedule", "0 0 3 * * *")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// bindLegacyEnv accepts the plain notification variables used by existing
// deployments next to the prefixed ones
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"telegram.bot_token": {EnvPrefix + "_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		"telegram.chat_id":   {EnvPrefix + "_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"},
		"email.host":         {EnvPrefix + "_EMAIL_HOST", "EMAIL_HOST"},
		"email.port":         {EnvPrefix + "_EMAIL_PORT", "EMAIL_PORT"},
		"email.username":     {EnvPrefix + "_EMAIL_USERNAME", "EMAIL_USER"},
		"email.password":     {EnvPrefix + "_EMAIL_PASSWORD", "EMAIL_PASSWORD"},
		"email.from":         {EnvPrefix + "_EMAIL_FROM", "EMAIL_FROM"},
		"email.to":           {EnvPrefix + "_EMAIL_TO", "EMAIL_TO"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from path. An empty path looks for config.yaml in
// ./config and the working directory; a missing file there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// EMAIL_TO may hold a comma separated list
	if len(cfg.Email.To) == 1 && strings.Contains(cfg.Email.To[0], ",") {
		cfg.Email.To = splitList(cfg.Email.To[0])
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Stream.Interval <= 0 {
		return fmt.Errorf("stream.interval must be positive")
	}
	if c.Alerts.Interval <= 0 {
		return fmt.Errorf("alerts.interval must be positive")
	}
	if c.Alerts.Cooldown < 0 {
		return fmt.Errorf("alerts.cooldown must not be negative")
	}
	switch c.Alerts.CooldownKey {
	case "kind", "source":
	default:
		return fmt.Errorf("alerts.cooldown_key must be kind or source, got %q", c.Alerts.CooldownKey)
	}
	if c.Alerts.HistoryCapacity <= 0 {
		return fmt.Errorf("alerts.history_capacity must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
