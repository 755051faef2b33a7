package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Reservation configuration
	HoldWindow    time.Duration
	SweepInterval time.Duration

	// Admission configuration
	MaxAdmitBatch     int
	AdmissionTokenTTL time.Duration

	// Credential configuration
	CredentialSecret string
	AcceptLegacyQR   bool

	// Transfer and share configuration
	TransferTTL  time.Duration
	ShareSlotTTL time.Duration

	// Payment gateway configuration
	GatewayProvider string
	GatewayBaseURL  string
	GatewayMerchant string
	GatewayHMACKey  string
	GatewayTimeout  time.Duration
	Currency        string

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Reservations
		HoldWindow:    getEnvAsDuration("HOLD_WINDOW", "10m"),
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", "30s"),

		// Admission
		MaxAdmitBatch:     getEnvAsInt("MAX_ADMIT_BATCH", 50),
		AdmissionTokenTTL: getEnvAsDuration("ADMISSION_TOKEN_TTL", "5m"),

		// Credentials
		CredentialSecret: getEnv("CREDENTIAL_SECRET", "dev-only-secret"),
		AcceptLegacyQR:   getEnvAsBool("ACCEPT_LEGACY_QR", true),

		// Transfers and shares
		TransferTTL:  getEnvAsDuration("TRANSFER_TTL", "72h"),
		ShareSlotTTL: getEnvAsDuration("SHARE_SLOT_TTL", "48h"),

		// Gateway
		GatewayProvider: getEnv("GATEWAY_PROVIDER", "memory"),
		GatewayBaseURL:  getEnv("GATEWAY_BASE_URL", ""),
		GatewayMerchant: getEnv("GATEWAY_MERCHANT_ID", ""),
		GatewayHMACKey:  getEnv("GATEWAY_HMAC_KEY", ""),
		GatewayTimeout:  getEnvAsDuration("GATEWAY_TIMEOUT", "10s"),
		Currency:        getEnv("CURRENCY", "INR"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
