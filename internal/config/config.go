package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Sessionize struct {
		BaseURL string `yaml:"base_url"`
		ID      string `yaml:"id"`
		TTL     string `yaml:"ttl"`
	} `yaml:"sessionize"`
	Schedule struct {
		SyncCooldown string `yaml:"sync_cooldown"`
		LunchSlot    int    `yaml:"lunch_slot"`
	} `yaml:"schedule"`
	Quiz struct {
		TimePerQuestion string `yaml:"time_per_question"`
		TotalPoints     int    `yaml:"total_points"`
		Grace           string `yaml:"grace"`
	} `yaml:"quiz"`
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

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
