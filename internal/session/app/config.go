package app

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	APIBaseURL string // Required: base URL of the CodeStrata backend API

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)

	StorageDir    string // Optional: directory for token and cache files (default: ~/.codestrata)
	MasterKeyPath string // Optional: path to the at-rest encryption key file
	CacheFile     string // Optional: path to the offline profile cache (default: <storage>/cache.db)
	DisableCache  bool   // Optional: run without the offline cache

	PermissiveValidation bool          // Optional: tolerate malformed/claimless tokens (dev only)
	RequestTimeout       time.Duration // Per-request HTTP timeout (default: 15s)
	WaitTimeout          time.Duration // Bounded wait on shared refresh/profile flights (default: 20s)
	MaxRefreshAttempts   int           // Consecutive refresh failures before giving up (default: 5)
	CookieTTL            time.Duration // Lifetime of mirrored cookie records (default: 24h)

	IdleTimeout   time.Duration // Inactivity threshold before forced logout (default: 30m)
	RefreshMargin time.Duration // Proactive refresh lead time before token expiry (default: 2m)
	WarnMargin    time.Duration // Expiry warning lead time (default: 1m)
}

func LoadConfig() Config {
	cfg := Config{
		APIBaseURL: getEnvOrDefault("STRATA_API_BASE_URL", "http://localhost:8080"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		StorageDir:    os.Getenv("STRATA_STORAGE_DIR"),
		MasterKeyPath: os.Getenv("STRATA_MASTER_KEY_PATH"),
		CacheFile:     os.Getenv("STRATA_CACHE_FILE"),
		DisableCache:  getEnvBoolOrDefault("STRATA_DISABLE_CACHE", false),

		PermissiveValidation: getEnvBoolOrDefault("STRATA_PERMISSIVE_VALIDATION", false),
		RequestTimeout:       getEnvDurationOrDefault("STRATA_REQUEST_TIMEOUT", 15*time.Second),
		WaitTimeout:          getEnvDurationOrDefault("STRATA_WAIT_TIMEOUT", 20*time.Second),
		MaxRefreshAttempts:   getEnvIntOrDefault("STRATA_MAX_REFRESH_ATTEMPTS", 5),
		CookieTTL:            getEnvDurationOrDefault("STRATA_COOKIE_TTL", 24*time.Hour),

		IdleTimeout:   getEnvDurationOrDefault("STRATA_IDLE_TIMEOUT", 30*time.Minute),
		RefreshMargin: getEnvDurationOrDefault("STRATA_REFRESH_MARGIN", 2*time.Minute),
		WarnMargin:    getEnvDurationOrDefault("STRATA_WARN_MARGIN", time.Minute),
	}

	if cfg.StorageDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.StorageDir = filepath.Join(home, ".codestrata")
	}
	if cfg.CacheFile == "" {
		cfg.CacheFile = filepath.Join(cfg.StorageDir, "cache.db")
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept Go duration strings ("30m", "90s") or bare integer minutes.
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
