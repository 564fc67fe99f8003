package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	RemoteDatabaseURL     string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	TerminalID            string
	AuthSecret            string
	AccessTokenTTLMinutes int
	SyncIntervalSeconds   int
	StatusPollSeconds     int
	ProbeTimeoutSeconds   int
	MaxRetries            int
	LogLevel              string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	syncInterval, err := strconv.Atoi(getEnv("SYNC_INTERVAL_SECONDS", "300"))
	if err != nil || syncInterval < 1 {
		syncInterval = 300
	}
	statusPoll, err := strconv.Atoi(getEnv("STATUS_POLL_SECONDS", "30"))
	if err != nil || statusPoll < 1 {
		statusPoll = 30
	}
	probeTimeout, err := strconv.Atoi(getEnv("PROBE_TIMEOUT_SECONDS", "5"))
	if err != nil || probeTimeout < 1 {
		probeTimeout = 5
	}
	maxRetries, err := strconv.Atoi(getEnv("SYNC_MAX_RETRIES", "3"))
	if err != nil || maxRetries < 0 {
		maxRetries = 3
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		RemoteDatabaseURL:     os.Getenv("REMOTE_DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		TerminalID:            getEnv("TERMINAL_ID", "terminal-1"),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		SyncIntervalSeconds:   syncInterval,
		StatusPollSeconds:     statusPoll,
		ProbeTimeoutSeconds:   probeTimeout,
		MaxRetries:            maxRetries,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
