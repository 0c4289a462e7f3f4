// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all settings recognized by the auth service.
type Config struct {
	Port       int
	Production bool

	JWTSecret          string
	RefreshTokenSecret string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	UseMongoDB    bool
	MongoURI      string
	MongoDatabase string
	UsersFilePath string
	AuditLogPath  string

	EnableAccountLockout bool
	EnableRefreshTokens  bool
}

// Load reads configuration from the environment. A .env file is consulted
// first when ENV is not production, matching local development workflows.
func Load() Config {
	if os.Getenv("ENV") != "production" {
		godotenv.Load()
	}

	return Config{
		Port:       getEnvInt("PORT", 8097),
		Production: os.Getenv("ENV") == "production",

		JWTSecret:          getEnv("JWT_SECRET", "insecure-dev-jwt-secret"),
		RefreshTokenSecret: getEnv("REFRESH_TOKEN_SECRET", "insecure-dev-refresh-secret"),
		AccessTokenExpiry:  getEnvDuration("ACCESS_TOKEN_EXPIRY", time.Hour),
		RefreshTokenExpiry: getEnvDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),

		UseMongoDB:    getEnvBool("USE_MONGODB", false),
		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "authd"),
		UsersFilePath: getEnv("USERS_FILE_PATH", "./data/users.json"),
		AuditLogPath:  getEnv("AUDIT_LOG_PATH", "./data/audit.db"),

		EnableAccountLockout: getEnvBool("ENABLE_ACCOUNT_LOCKOUT", true),
		EnableRefreshTokens:  getEnvBool("ENABLE_REFRESH_TOKENS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("1h", "30m") and, for
// compatibility with earlier deployments, day values as a bare integer
// ("7" == 168h) or with a d suffix ("7d"), which time.ParseDuration does
// not understand.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	dayStr := strings.TrimSuffix(valueStr, "d")
	if days, err := strconv.Atoi(dayStr); err == nil && days > 0 {
		return time.Duration(days) * 24 * time.Hour
	}
	return defaultValue
}
