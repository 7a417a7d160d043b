package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr                string `yaml:"redisAddr"`
	RedisPassword            string `yaml:"redisPassword"`
	BorrowRateLimitPerMinute int    `yaml:"borrowRateLimitPerMinute"`

	SMTPHost string `yaml:"smtpHost"`
	SMTPPort int    `yaml:"smtpPort"`
	SMTPUser string `yaml:"smtpUser"`
	SMTPPass string `yaml:"smtpPass"`
	MailFrom string `yaml:"mailFrom"`

	AMQPURL           string `yaml:"amqpURL"`
	NotificationQueue string `yaml:"notificationQueue"`

	SweepInterval string `yaml:"sweepInterval"`
	DueSoonWindow string `yaml:"dueSoonWindow"`
}

// Load reads config from path (defaults to config.yaml). Environment
// variables with the BOOKVAULT_ prefix override file values so deployments
// can keep secrets out of the file.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("BOOKVAULT_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKVAULT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKVAULT_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKVAULT_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKVAULT_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("BOOKVAULT_BORROW_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.BorrowRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("BOOKVAULT_SMTP_HOST"); v != "" {
		cfg.SMTPHost = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKVAULT_SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SMTPPort = n
		}
	}
	if v := os.Getenv("BOOKVAULT_SMTP_USER"); v != "" {
		cfg.SMTPUser = v
	}
	if v := os.Getenv("BOOKVAULT_SMTP_PASS"); v != "" {
		cfg.SMTPPass = v
	}
	if v := os.Getenv("BOOKVAULT_MAIL_FROM"); v != "" {
		cfg.MailFrom = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKVAULT_AMQP_URL"); v != "" {
		cfg.AMQPURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKVAULT_NOTIFICATION_QUEUE"); v != "" {
		cfg.NotificationQueue = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKVAULT_SWEEP_INTERVAL"); v != "" {
		cfg.SweepInterval = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKVAULT_DUE_SOON_WINDOW"); v != "" {
		cfg.DueSoonWindow = strings.TrimSpace(v)
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	return cfg, nil
}

// ParseSweepInterval parses the sweep interval, defaulting to daily.
func ParseSweepInterval(raw string) (time.Duration, error) {
	return parseDuration(raw, 24*time.Hour)
}

// ParseDueSoonWindow parses the due-soon reminder window, defaulting to
// two days. "0" disables the reminders.
func ParseDueSoonWindow(raw string) (time.Duration, error) {
	return parseDuration(raw, 48*time.Hour)
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	if raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", raw)
	}
	return d, nil
}
