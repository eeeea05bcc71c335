package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Flood     FloodConfig
	TwoFactor TwoFactorConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

type FloodConfig struct {
	// CleanupInterval is how often the background sweep removes events
	// past their rule's cleanup window.
	CleanupInterval time.Duration
}

type TwoFactorConfig struct {
	Issuer              string
	SecretLength        int
	Discrepancy         int
	EmergencyCodeCount  int
	ChallengeSecret     string
	ChallengeExpiry     time.Duration
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
}

type EmailConfig struct {
	AWSRegion    string
	FromAddress  string
	ResetURLBase string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	challengeSecret := getEnv("CHALLENGE_SECRET", "")
	if challengeSecret == "" {
		return nil, fmt.Errorf("CHALLENGE_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "floodgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES"),
		},
		Flood: FloodConfig{
			CleanupInterval: getEnvAsDuration("FLOOD_CLEANUP_INTERVAL", 10*time.Minute),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:              getEnv("TOTP_ISSUER", "Floodgate"),
			SecretLength:        getEnvAsInt("TOTP_SECRET_LENGTH", 16),
			Discrepancy:         getEnvAsInt("TOTP_DISCREPANCY", 1),
			EmergencyCodeCount:  getEnvAsInt("EMERGENCY_CODE_COUNT", 10),
			ChallengeSecret:     challengeSecret,
			ChallengeExpiry:     getEnvAsDuration("CHALLENGE_EXPIRY", 5*time.Minute),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 200),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
		},
		Email: EmailConfig{
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
			ResetURLBase: getEnv("RESET_URL_BASE", "http://localhost:8080/account/password/new"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateChallengeSecret(challengeSecret, env); err != nil {
		return nil, err
	}

	if cfg.TwoFactor.SecretLength < 16 || cfg.TwoFactor.SecretLength > 128 {
		return nil, fmt.Errorf("TOTP_SECRET_LENGTH must be between 16 and 128 (got %d)", cfg.TwoFactor.SecretLength)
	}

	// A negative discrepancy leaves no time slice to verify against
	if cfg.TwoFactor.Discrepancy < 0 {
		return nil, fmt.Errorf("TOTP_DISCREPANCY must not be negative (got %d)", cfg.TwoFactor.Discrepancy)
	}

	return cfg, nil
}

// validateChallengeSecret enforces minimum strength for the second-factor
// challenge token signing secret.
func validateChallengeSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("CHALLENGE_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("CHALLENGE_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
