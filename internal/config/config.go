// Package config loads server settings from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string
	StatusAddr string

	RedisURL    string
	DatabaseURL string

	MessageDir string

	GracePeriod   time.Duration
	SessionTTL    time.Duration
	RoomIdleTTL   time.Duration
	SweepInterval time.Duration

	ChatHistoryLimit int
	ChatMaxLen       int
	ChatRateLimit    int
	ChatRateWindow   time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:       ":8080",
		StatusAddr:       ":8081",
		GracePeriod:      30 * time.Second,
		SessionTTL:       24 * time.Hour,
		RoomIdleTTL:      time.Hour,
		SweepInterval:    30 * time.Minute,
		ChatHistoryLimit: 50,
		ChatMaxLen:       200,
		ChatRateLimit:    5,
		ChatRateWindow:   30 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("STATUS_ADDR")); v != "" {
		cfg.StatusAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	readDuration("GRACE_PERIOD", &cfg.GracePeriod)
	readDuration("SESSION_TTL", &cfg.SessionTTL)
	readDuration("ROOM_IDLE_TTL", &cfg.RoomIdleTTL)
	readDuration("SWEEP_INTERVAL", &cfg.SweepInterval)
	readDuration("CHAT_RATE_WINDOW", &cfg.ChatRateWindow)

	readInt("CHAT_HISTORY_LIMIT", &cfg.ChatHistoryLimit)
	readInt("CHAT_MAX_LEN", &cfg.ChatMaxLen)
	readInt("CHAT_RATE_LIMIT", &cfg.ChatRateLimit)

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}

func readDuration(key string, dst *time.Duration) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}

func readInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
