package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                   string
	DatabaseURL            string
	AuthDisabled           bool
	ProviderCacheTTL       time.Duration
	ReturnGrace            time.Duration
	ReturnInterval         time.Duration
	ReturnBatchSize        int
	RateLimitPerMinute     int
	RateLimitBurst         int
	DeptRateLimitPerMinute int
	DeptRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                   port,
		DatabaseURL:            os.Getenv("DB_DSN"),
		AuthDisabled:           readBool("AUTH_DISABLED", false),
		ProviderCacheTTL:       readDurationSeconds("PROVIDER_CACHE_TTL_SECONDS", 30),
		ReturnGrace:            readDurationSeconds("CALL_RETURN_GRACE_SECONDS", 0),
		ReturnInterval:         readDurationSeconds("CALL_RETURN_SCAN_INTERVAL_SECONDS", 30),
		ReturnBatchSize:        readInt("CALL_RETURN_BATCH_SIZE", 100),
		RateLimitPerMinute:     readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:         readInt("RATE_LIMIT_BURST", 30),
		DeptRateLimitPerMinute: readInt("DEPT_RATE_LIMIT_PER_MIN", 600),
		DeptRateLimitBurst:     readInt("DEPT_RATE_LIMIT_BURST", 120),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
