package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig holds all server settings. Values come from a YAML file named by
// CONFIG_FILE (when set), with environment variables taking precedence.
type AppConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	StockfishPath    string `yaml:"stockfish_path"`
	AIMoveTimeMillis int    `yaml:"ai_move_time_ms"`

	ControllerTimeoutSec int `yaml:"controller_timeout_sec"`
	GameTTLSec           int `yaml:"game_ttl_sec"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:             ":8080",
		AIMoveTimeMillis:     1000,
		ControllerTimeoutSec: 30,
		GameTTLSec:           0,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		cfg.StockfishPath = v
	}
	if v := strings.TrimSpace(os.Getenv("AI_MOVE_TIME_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AIMoveTimeMillis = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CONTROLLER_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ControllerTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GAME_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.GameTTLSec = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}
