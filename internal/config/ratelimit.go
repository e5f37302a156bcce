package config

import (
	"time"
)

// RateLimitConfig tunes the Redis token bucket that throttles the login
// endpoint. This runs in front of the per-account lockout: the bucket is
// keyed by client IP and caps raw request volume, while lockout tracks
// failures per account.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

// LoadRateLimitConfig reads the rate-limit knobs from the environment.
// Defaults allow a burst of 10 login attempts per IP, refilling one
// attempt every 2 seconds.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("LOGIN_RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("LOGIN_RATE_LIMIT_CAPACITY", 10),
		RefillTokens:   envInt("LOGIN_RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("LOGIN_RATE_LIMIT_REFILL_INTERVAL", 2*time.Second),
		TTL:            envDur("LOGIN_RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:         envStr("LOGIN_RATE_LIMIT_PREFIX", "login-rl"),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}
