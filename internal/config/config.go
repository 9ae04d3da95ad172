package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	SNSRegion string

	RedisURL             string // optional; OTP throttling is disabled when empty
	OTPRequestsPerMinute int
	OTPTTL               time.Duration

	PredictionBaseURL   string
	PredictionTimeout   time.Duration
	ExternalCallTimeout time.Duration
	SessionIdleTimeout  time.Duration
	MaxDeviceSessions   int

	AllowedOrigins    []string // CORS allowed origins
	TrustProxyHeaders bool     // honour X-Forwarded-For / X-Real-IP; enable only behind a proxy that sets them
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Accounts        string
	AccountTokens   string
	Profiles        string
	PhoneChallenges string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Accounts:        getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
			AccountTokens:   getEnv("DYNAMO_TABLE_ACCOUNT_TOKENS", "account_tokens"),
			Profiles:        getEnv("DYNAMO_TABLE_PROFILES", "users"),
			PhoneChallenges: getEnv("DYNAMO_TABLE_PHONE_CHALLENGES", "phone_challenges"),
		},
		JWTPrivateKeyPath:    getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:     getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:            time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,
		SMTPHost:             getEnv("SMTP_HOST", "localhost"),
		SMTPPort:             getEnv("SMTP_PORT", "1025"),
		SMTPFrom:             getEnv("SMTP_FROM", "noreply@growsmart.app"),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		SNSRegion:            getEnv("SNS_REGION", "us-east-1"),
		RedisURL:             getEnv("REDIS_URL", ""),
		OTPRequestsPerMinute: getEnvInt("OTP_REQUESTS_PER_MINUTE", 3),
		OTPTTL:               getEnvDuration("OTP_TTL", 5*time.Minute),
		PredictionBaseURL:    getEnv("PREDICTION_BASE_URL", "http://localhost:5000"),
		PredictionTimeout:    getEnvDuration("PREDICTION_TIMEOUT", 30*time.Second),
		ExternalCallTimeout:  getEnvDuration("EXTERNAL_CALL_TIMEOUT", 15*time.Second),
		SessionIdleTimeout:   getEnvDuration("SESSION_IDLE_TIMEOUT", 24*time.Hour),
		MaxDeviceSessions:    getEnvInt("MAX_DEVICE_SESSIONS", 10000),
		AllowedOrigins:       strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustProxyHeaders:    getEnvBool("TRUST_PROXY_HEADERS", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("30s", "2m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
