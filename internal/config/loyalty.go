package config

import (
	"os"
	"strconv"
	"time"
)

// LoyaltyConfig carries the tunables of the redemption core.
type LoyaltyConfig struct {
	SessionTTL        time.Duration
	SessionCacheTTL   time.Duration
	RegistrationBonus int
	CodePrefix        string
	CodeIDRandomBytes int
	MinPointValue     int
	MaxPointValue     int
}

func LoadLoyaltyConfig() *LoyaltyConfig {
	return &LoyaltyConfig{
		SessionTTL:        getEnvAsDuration("SESSION_TTL", 30*24*time.Hour),
		SessionCacheTTL:   getEnvAsDuration("SESSION_CACHE_TTL", 5*time.Minute),
		RegistrationBonus: getEnvAsInt("REGISTRATION_BONUS_POINTS", 100),
		CodePrefix:        getEnv("CODE_PREFIX", "NSP"),
		CodeIDRandomBytes: getEnvAsInt("CODE_ID_RANDOM_BYTES", 4),
		MinPointValue:     1,
		MaxPointValue:     1000,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
