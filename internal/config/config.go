// Package config centralizes environment-driven runtime settings.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config mirrors the flat settings of the reference implementation: one
// struct field per environment variable, defaults applied at load time.
type Config struct {
	LogLevel string

	DBDriver   string
	DBHost     string
	DBPort     int
	DBUsername string
	DBPassword string
	DBDatabase string
	DBSchema   string
	DBDebug    bool

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDatabase int

	NumWorkers int

	APIURL string

	// SafetyBlocks is the number of blocks the scanner trails the chain tip by.
	SafetyBlocks uint64

	// PairLoadTimeout bounds how long a worker polls for a pair created by a
	// sibling job to become visible. Open Question (d) in the expanded design notes.
	PairLoadTimeout time.Duration

	// LockDir holds the single-instance pid-lock files, named xquery.<chain>.pid.
	LockDir string
}

// Load reads Config from the process environment, applying the same
// defaults as the reference DEFAULT dict.
func Load() *Config {
	c := &Config{
		LogLevel: getenv("LOG_LEVEL", "info"),

		DBDriver:   getenv("DB_DRIVER", "postgresql"),
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenvInt("DB_PORT", 5432),
		DBUsername: getenv("DB_USERNAME", "root"),
		DBPassword: getenv("DB_PASSWORD", "password"),
		DBDatabase: getenv("DB_DATABASE", "debug"),
		DBSchema:   getenv("DB_SCHEMA", "public"),
		DBDebug:    getenvBool("DB_DEBUG", false),

		RedisHost:     getenv("REDIS_HOST", "localhost"),
		RedisPort:     getenvInt("REDIS_PORT", 6379),
		RedisPassword: getenv("REDIS_PASSWORD", "password"),
		RedisDatabase: getenvInt("REDIS_DATABASE", 0),

		NumWorkers: getenvInt("XQ_NUM_WORKERS", 16),

		APIURL: getenv("API_URL", "http://localhost:8545/"),

		SafetyBlocks:    uint64(getenvInt("XQ_SAFETY_BLOCKS", 20)),
		PairLoadTimeout: time.Duration(getenvInt("XQ_PAIR_LOAD_TIMEOUT_SEC", 600)) * time.Second,
		LockDir:         getenv("XQ_LOCK_DIR", "/tmp"),
	}
	return c
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
