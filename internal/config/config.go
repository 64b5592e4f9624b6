package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"servicepulse/internal/models"
)

// Floors for per-service scheduling values, enforced for both seeded and
// API-created services.
const (
	MinIntervalSeconds = 10
	MinTimeoutSeconds  = 5
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Services  []SeedService   `yaml:"services"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type SchedulerConfig struct {
	PollInterval    string `yaml:"poll_interval"`     // e.g. "10s"
	MaxConcurrent   int64  `yaml:"max_concurrent"`    // concurrent check cap
	ResultRetention string `yaml:"result_retention"`  // e.g. "720h"; empty disables pruning

	// Parsed durations (filled after load)
	PollIntervalDur    time.Duration `yaml:"-"`
	ResultRetentionDur time.Duration `yaml:"-"`
}

type TelegramConfig struct {
	Enabled bool  `yaml:"enabled"`
	ChatID  int64 `yaml:"chat_id"`
	// Token comes from the TELEGRAM_BOT_TOKEN env var, never the file.
}

// SeedService is an optional service definition loaded into an empty store
// at startup, so a fresh deployment monitors something before the first
// API call.
type SeedService struct {
	Name            string         `yaml:"name"`
	Type            string         `yaml:"type"`
	Target          string         `yaml:"target"`
	Config          map[string]any `yaml:"config,omitempty"`
	IntervalSeconds int            `yaml:"interval_seconds,omitempty"`
	TimeoutSeconds  int            `yaml:"timeout_seconds,omitempty"`
	Tags            []string       `yaml:"tags,omitempty"`
	GroupName       string         `yaml:"group_name,omitempty"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateAndNormalize(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8080"
	}

	if strings.TrimSpace(cfg.Scheduler.PollInterval) == "" {
		cfg.Scheduler.PollInterval = "10s"
	}
	if cfg.Scheduler.MaxConcurrent <= 0 {
		cfg.Scheduler.MaxConcurrent = 50
	}

	for i := range cfg.Services {
		s := &cfg.Services[i]
		if s.IntervalSeconds <= 0 {
			s.IntervalSeconds = 60
		}
		if s.TimeoutSeconds <= 0 {
			s.TimeoutSeconds = 30
		}
	}
}

func validateAndNormalize(cfg *Config) error {
	pollDur, err := time.ParseDuration(cfg.Scheduler.PollInterval)
	if err != nil {
		return fmt.Errorf("config: invalid poll_interval %q: %w", cfg.Scheduler.PollInterval, err)
	}
	if pollDur <= 0 {
		return errors.New("config: poll_interval must be > 0")
	}
	cfg.Scheduler.PollIntervalDur = pollDur

	if raw := strings.TrimSpace(cfg.Scheduler.ResultRetention); raw != "" {
		retention, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: invalid result_retention %q: %w", raw, err)
		}
		if retention <= 0 {
			return errors.New("config: result_retention must be > 0")
		}
		cfg.Scheduler.ResultRetentionDur = retention
	}

	if cfg.Telegram.Enabled && cfg.Telegram.ChatID == 0 {
		return errors.New("config: telegram enabled but chat_id missing")
	}

	seen := make(map[string]struct{}, len(cfg.Services))
	for i := range cfg.Services {
		s := &cfg.Services[i]

		s.Name = strings.TrimSpace(s.Name)
		s.Target = strings.TrimSpace(s.Target)
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))

		if s.Name == "" {
			return fmt.Errorf("config: service[%d] missing name", i)
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("config: duplicate service name %q", s.Name)
		}
		seen[s.Name] = struct{}{}

		if s.Target == "" {
			return fmt.Errorf("config: service %q missing target", s.Name)
		}
		if !models.ServiceType(s.Type).Valid() {
			return fmt.Errorf("config: service %q invalid type %q", s.Name, s.Type)
		}
		if s.IntervalSeconds < MinIntervalSeconds {
			return fmt.Errorf("config: service %q interval_seconds must be >= %d", s.Name, MinIntervalSeconds)
		}
		if s.TimeoutSeconds < MinTimeoutSeconds {
			return fmt.Errorf("config: service %q timeout_seconds must be >= %d", s.Name, MinTimeoutSeconds)
		}
	}

	return nil
}
