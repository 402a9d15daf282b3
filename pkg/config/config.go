package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the journal core.
type Config struct {
	Port string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// MT5 bridge
	BridgeToken   string // shared secret for the terminal bridge endpoints
	SnapshotTTL   time.Duration
	TerminalStale time.Duration
	TerminalEvict time.Duration

	// WebSocket origin policy
	OriginsFile string // YAML allow-list; empty means allow-all (dev)

	// Encryption for stored MT5 credentials
	EncryptionKey     string
	EncryptionVersion int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		DBPath:            getEnv("DB_PATH", "./data/journal.db"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		BridgeToken:       os.Getenv("BRIDGE_TOKEN"),
		SnapshotTTL:       getEnvDuration("MT5_SNAPSHOT_TTL", 2*time.Minute),
		TerminalStale:     getEnvDuration("TERMINAL_STALE_AFTER", 90*time.Second),
		TerminalEvict:     getEnvDuration("TERMINAL_EVICT_AFTER", 30*time.Minute),
		OriginsFile:       getEnv("ORIGINS_FILE", ""),
		EncryptionKey:     os.Getenv("ENCRYPTION_KEY"),
		EncryptionVersion: getEnvInt("ENCRYPTION_KEY_VERSION", 1),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
