package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer   string   // Required: issuer claim for tokens
	Audience []string // Optional: audience claim for tokens (default: ["authd"])

	AccessSecret  string // Required: HS256 secret for access and MFA challenge tokens (min 32 bytes)
	RefreshSecret string // Required: HS256 secret for refresh tokens (min 32 bytes)

	AccessTTL       time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTTL      time.Duration // Optional: refresh token lifetime (default: 30 days)
	MFAChallengeTTL time.Duration // Optional: MFA bridge token lifetime (default: 5m)

	LockoutThreshold int           // Optional: failed logins before lockout (default: 5)
	LockoutWindow    time.Duration // Optional: how long a lock lasts (default: 15m)

	OTPTTL            time.Duration // Optional: delivered code lifetime (default: 5m)
	OTPMaxAttempts    int           // Optional: wrong guesses before a code is voided (default: 5)
	OTPResendCooldown time.Duration // Optional: minimum gap between sends (default: 60s)

	ResetURL             string        // Optional: base URL for emailed reset links
	ResetTokenTTL        time.Duration // Optional: reset link lifetime (default: 1h)
	ResetRequestCooldown time.Duration // Optional: minimum gap between reset mails (default: 60s)

	SMTPHost     string // Optional: SMTP relay; codes and links are logged when unset
	SMTPPort     int    // Optional: SMTP port (default: 587)
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	RedisAddr string // Optional: Redis for send cooldowns; in-memory when unset

	DatabaseFile  string // Optional: path to SQLite database file (default: ./auth.db)
	PepperFile    string // Optional: path to pepper file for password hashing (default: ./pepper)
	MasterKeyPath string // Optional: path to master key file for TOTP secret encryption

	CookieSecure bool   // Optional: mark the refresh cookie Secure (default: true outside dev)
	CookiePath   string // Optional: refresh cookie path (default: /v1/auth)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := Config{
		Issuer:        os.Getenv("AUTH_ISSUER"),
		AccessSecret:  os.Getenv("AUTH_ACCESS_SECRET"),
		RefreshSecret: os.Getenv("AUTH_REFRESH_SECRET"),

		AccessTTL:       getEnvDurationOrDefault("AUTH_ACCESS_TTL", 0),
		RefreshTTL:      getEnvDurationOrDefault("AUTH_REFRESH_TTL", 0),
		MFAChallengeTTL: getEnvDurationOrDefault("AUTH_MFA_CHALLENGE_TTL", 0),

		LockoutThreshold: getEnvIntOrDefault("AUTH_LOCKOUT_THRESHOLD", 0),
		LockoutWindow:    getEnvDurationOrDefault("AUTH_LOCKOUT_WINDOW", 0),

		OTPTTL:            getEnvDurationOrDefault("AUTH_OTP_TTL", 0),
		OTPMaxAttempts:    getEnvIntOrDefault("AUTH_OTP_MAX_ATTEMPTS", 0),
		OTPResendCooldown: getEnvDurationOrDefault("AUTH_OTP_RESEND_COOLDOWN", 0),

		ResetURL:             getEnvOrDefault("AUTH_RESET_URL", "http://localhost:8080/reset"),
		ResetTokenTTL:        getEnvDurationOrDefault("AUTH_RESET_TOKEN_TTL", 0),
		ResetRequestCooldown: getEnvDurationOrDefault("AUTH_RESET_REQUEST_COOLDOWN", 0),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvIntOrDefault("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:    getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		MasterKeyPath: os.Getenv("AUTH_MASTER_KEY_PATH"),

		CookiePath: os.Getenv("AUTH_COOKIE_PATH"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if aud := os.Getenv("AUTH_AUDIENCE"); aud != "" {
		for _, a := range strings.Split(aud, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.Audience = append(cfg.Audience, a)
			}
		}
	}
	if len(cfg.Audience) == 0 {
		cfg.Audience = []string{"authd"}
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "authd"
	}

	// Browsers only need the Secure flag relaxed for plain-http local runs.
	cfg.CookieSecure = getEnvBoolOrDefault("AUTH_COOKIE_SECURE", cfg.Env != "dev")

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

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
