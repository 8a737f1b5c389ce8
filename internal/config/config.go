package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Conversation limits
	MaxInputLength        int
	MaxMessagesPerSession int
	MaxSessions           int
	MaxToolTurns          int
	LLMTurnTimeout        time.Duration

	// Model
	BedrockModelID  string
	MaxOutputTokens int

	// Backends: "memory" or "redis" for sessions, "memory" or "dynamodb" for records
	SessionBackend string
	RecordsBackend string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	PatientsTable       string
	MedicationsTable    string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	CORSAllowedOrigins []string

	// Per-IP chat rate limiting; zero disables it.
	ChatRatePerSecond float64
	ChatBurst         int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MaxInputLength:        getEnvAsInt("MAX_INPUT_LENGTH", 1000),
		MaxMessagesPerSession: getEnvAsInt("MAX_MESSAGES_PER_SESSION", 50),
		MaxSessions:           getEnvAsInt("MAX_SESSIONS", 100),
		MaxToolTurns:          getEnvAsInt("MAX_TOOL_TURNS", 8),
		LLMTurnTimeout:        getEnvAsDuration("LLM_TURN_TIMEOUT", 60*time.Second),

		BedrockModelID:  getEnv("BEDROCK_MODEL_ID", ""),
		MaxOutputTokens: getEnvAsInt("MAX_OUTPUT_TOKENS", 1024),

		SessionBackend: strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		RecordsBackend: strings.ToLower(strings.TrimSpace(getEnv("RECORDS_BACKEND", "memory"))),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		PatientsTable:       getEnv("PATIENTS_TABLE", "pharmacy_patients"),
		MedicationsTable:    getEnv("MEDICATIONS_TABLE", "pharmacy_medications"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),

		ChatRatePerSecond: getEnvAsFloat("CHAT_RATE_PER_SECOND", 1),
		ChatBurst:         getEnvAsInt("CHAT_BURST", 5),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
