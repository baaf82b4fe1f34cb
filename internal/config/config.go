package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full environment surface of the service. Integer values are
// clamped to their documented ranges at load time so a bad deployment cannot
// disable the guards.
type Config struct {
	DatabaseURL string
	Port        string
	AppEnv      string
	SentryDSN   string
	CronSecret  string

	// AuthMode is "local" (per-user credentials) or "token" (shared
	// operator secret).
	AuthMode string
	APIToken string

	SessionTTL   time.Duration
	RefreshGrace time.Duration

	LoginFailLimit  int
	LoginFailWindow time.Duration
	LoginLock       time.Duration

	RequestLimitPerMinute int
	DuplicateLimit        int
	DuplicateWindow       time.Duration
	EnforceHardRateLimit  bool

	AllowCrossSessionAccess  bool
	SessionIsolationEnabled  bool
	RequireSessionID         bool
	RequireLoginForProtected bool

	DefaultUsername string
	DefaultPassword string

	MaxJSONBodyBytes int64

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
}

// Load reads the configuration from the environment. DATABASE_URL is the
// only required value.
func Load() (Config, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return Config{}, fmt.Errorf("missing required env: DATABASE_URL")
	}

	return Config{
		DatabaseURL: databaseURL,
		Port:        StringOrDefault("PORT", "8080"),
		AppEnv:      StringOrDefault("APP_ENV", "development"),
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		CronSecret:  strings.TrimSpace(os.Getenv("CRON_SECRET")),

		AuthMode: authMode(),
		APIToken: strings.TrimSpace(os.Getenv("API_TOKEN")),

		SessionTTL:   secondsOrDefault("SESSION_TTL_SECONDS", 7*24*3600, 300, 30*24*3600),
		RefreshGrace: secondsOrDefault("REFRESH_GRACE_SECONDS", 24*3600, 0, 30*24*3600),

		LoginFailLimit:  IntOrDefault("LOGIN_FAIL_LIMIT", 6, 2, 100),
		LoginFailWindow: secondsOrDefault("LOGIN_FAIL_WINDOW_SECONDS", 300, 10, 24*3600),
		LoginLock:       secondsOrDefault("LOGIN_LOCK_SECONDS", 300, 10, 24*3600),

		RequestLimitPerMinute: IntOrDefault("RATE_LIMIT_PER_MINUTE", 20, 1, 500),
		DuplicateLimit:        IntOrDefault("DUPLICATE_SUBMIT_LIMIT", 3, 2, 50),
		DuplicateWindow:       secondsOrDefault("DUPLICATE_WINDOW_SECONDS", 15, 1, 3600),
		EnforceHardRateLimit:  BoolOrDefault("ENFORCE_HARD_RATE_LIMIT", false),

		AllowCrossSessionAccess:  BoolOrDefault("ALLOW_CROSS_SESSION_ACCESS", false),
		SessionIsolationEnabled:  BoolOrDefault("SESSION_ISOLATION_ENABLED", false),
		RequireSessionID:         BoolOrDefault("REQUIRE_SESSION_ID", false),
		RequireLoginForProtected: BoolOrDefault("REQUIRE_LOGIN_FOR_PROTECTED", true),

		DefaultUsername: StringOrDefault("DEFAULT_USERNAME", "demo"),
		DefaultPassword: StringOrDefault("DEFAULT_PASSWORD", "demo123456"),

		MaxJSONBodyBytes: int64(IntOrDefault("MAX_JSON_BODY_BYTES", 80_000, 2_048, 1<<30)),

		DBMaxOpenConns:    IntOrDefault("DB_MAX_OPEN_CONNS", 10, 1, 1000),
		DBMaxIdleConns:    IntOrDefault("DB_MAX_IDLE_CONNS", 5, 1, 1000),
		DBConnMaxLifetime: minutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: minutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
	}, nil
}

func authMode() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	if raw == "token" || raw == "strict" {
		return "token"
	}

	return "local"
}

func StringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}

	return value
}

// IntOrDefault parses an integer env value and clamps it to [min, max].
// Unset or unparsable values yield the fallback.
func IntOrDefault(name string, fallback, min, max int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	if parsed < min {
		return min
	}
	if parsed > max {
		return max
	}

	return parsed
}

func BoolOrDefault(name string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func secondsOrDefault(name string, fallback, min, max int) time.Duration {
	return time.Duration(IntOrDefault(name, fallback, min, max)) * time.Second
}

func minutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(IntOrDefault(name, fallback, 1, 24*60)) * time.Minute
}
