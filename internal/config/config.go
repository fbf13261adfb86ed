package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quiz-session-service/internal/app"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Quiz struct {
		TTL                string `yaml:"ttl"`
		TimeLimit          string `yaml:"timeLimit"`
		TimerEnabled       *bool  `yaml:"timerEnabled"`
		TickInterval       string `yaml:"tickInterval"`
		CheckpointInterval string `yaml:"checkpointInterval"`
		DeliveryTimeout    string `yaml:"deliveryTimeout"`
	} `yaml:"quiz"`
	Sink struct {
		URL     string `yaml:"url"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"sink"`
	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
	Sync struct {
		Interval string `yaml:"interval"`
	} `yaml:"sync"`
	CORS struct {
		Origins []string `yaml:"origins"`
	} `yaml:"cors"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Session derives the per-session timing from the quiz section.
func (c Config) Session() app.SessionConfig {
	def := app.DefaultSessionConfig()
	out := app.SessionConfig{
		TimeLimit:          TTLDuration(c.Quiz.TimeLimit, def.TimeLimit),
		TimerEnabled:       def.TimerEnabled,
		TickInterval:       TTLDuration(c.Quiz.TickInterval, def.TickInterval),
		CheckpointInterval: TTLDuration(c.Quiz.CheckpointInterval, def.CheckpointInterval),
		DeliveryTimeout:    TTLDuration(c.Quiz.DeliveryTimeout, def.DeliveryTimeout),
	}
	if c.Quiz.TimerEnabled != nil {
		out.TimerEnabled = *c.Quiz.TimerEnabled
	}
	return out
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
