package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Signing secrets are loaded once at startup and
// are read-only afterwards; nothing in the token path derives keys at
// issue time.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret        string // secret used to sign user access/refresh tokens
	ServiceJWTSecret string // separate secret for service-to-service tokens
	ServiceAPIKey    string // shared key expected in the X-Service-Key header

	AccessTTL  time.Duration // access token lifetime
	RefreshTTL time.Duration // refresh token lifetime
	ServiceTTL time.Duration // service token lifetime

	BcryptCost int // bcrypt cost for password hashing

	MaxFailedLogins int           // consecutive failures before lockout
	LockoutDuration time.Duration // how long a locked account stays locked

	RotateOnRefresh bool // issue and persist a new refresh token on every refresh

	// RevocationTimeout bounds every denylist lookup. RevocationFailClosed
	// selects the policy when the lookup fails or times out: closed rejects
	// the request with a store error, open skips the denylist check.
	RevocationTimeout    time.Duration
	RevocationFailClosed bool

	PasswordHistoryDepth int // how many previous hashes block password reuse

	LogLevel string // zerolog level: debug, info, warn, error
}

// Load reads configuration values from environment variables and returns a
// Config. Secrets and database coordinates are enforced by must() and
// missing values cause the program to exit. Tunables fall back to
// documented defaults so a bare .env still boots a working service.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret:        must("JWT_SECRET"),
		ServiceJWTSecret: must("SERVICE_JWT_SECRET"),
		ServiceAPIKey:    must("SERVICE_API_KEY"),

		AccessTTL:  envDur("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL: envDur("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		ServiceTTL: envDur("SERVICE_TOKEN_TTL", 5*time.Minute),

		BcryptCost: envInt("BCRYPT_COST", 12),

		MaxFailedLogins: envInt("MAX_FAILED_LOGINS", 5),
		LockoutDuration: envDur("LOCKOUT_DURATION", 15*time.Minute),

		RotateOnRefresh: envBool("ROTATE_ON_REFRESH", true),

		RevocationTimeout:    envDur("REVOCATION_TIMEOUT", 500*time.Millisecond),
		RevocationFailClosed: envBool("REVOCATION_FAIL_CLOSED", true),

		PasswordHistoryDepth: envInt("PASSWORD_HISTORY_DEPTH", 5),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
