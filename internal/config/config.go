package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr string
	WSAddr   string

	RedisURL    string
	DatabaseURL string

	SessionTTL   time.Duration
	Clock        time.Duration
	EngineDelay  time.Duration
	EngineJitter time.Duration
	EngineSeed   int64

	WhiteController string
	BlackController string

	MessagesDir  string
	HistoryLimit int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:        ":8080",
		WSAddr:          ":8081",
		SessionTTL:      24 * time.Hour,
		Clock:           10 * time.Minute,
		EngineDelay:     800 * time.Millisecond,
		EngineJitter:    700 * time.Millisecond,
		WhiteController: "engine",
		BlackController: "engine",
		HistoryLimit:    10,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}

	// Both optional: without them sessions and archives stay in memory.
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		d, err := parseDuration(v, time.Second)
		if err != nil {
			return nil, fmt.Errorf("SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("CLOCK_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("CLOCK_SECONDS must be a positive integer, got %q", v)
		}
		cfg.Clock = time.Duration(n) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_DELAY_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ENGINE_DELAY_MS must be a positive integer, got %q", v)
		}
		cfg.EngineDelay = time.Duration(n) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_JITTER_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("ENGINE_JITTER_MS must be a non-negative integer, got %q", v)
		}
		cfg.EngineJitter = time.Duration(n) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_SEED")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ENGINE_SEED: %w", err)
		}
		cfg.EngineSeed = n
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("WHITE_CONTROLLER"))); v != "" {
		cfg.WhiteController = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("BLACK_CONTROLLER"))); v != "" {
		cfg.BlackController = v
	}
	for _, c := range []string{cfg.WhiteController, cfg.BlackController} {
		if c != "human" && c != "engine" {
			return nil, fmt.Errorf("controller must be human or engine, got %q", c)
		}
	}

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	if v := strings.TrimSpace(os.Getenv("HISTORY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}

	if cfg.HTTPAddr == cfg.WSAddr {
		return nil, errors.New("HTTP_ADDR and WS_ADDR must differ")
	}

	return cfg, nil
}

// parseDuration accepts a Go duration ("90m") or a bare number of units.
func parseDuration(v string, unit time.Duration) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", n)
		}
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}
