package config

import (
	"os"
	"strconv"
)

// Config holds the immutable process configuration. Values are read once
// at startup; .env loading for local development happens in main via
// godotenv.
type Config struct {
	// HTTP management surface
	Port           string
	EnableCORS     bool
	APISecretKey   string  // optional X-API-Key JWT secret; empty disables the check
	RequestsPerSec float64 // management surface rate limit

	// Asterisk ARI control plane
	ARIURL          string
	ARIWebsocketURL string
	ARIUsername     string
	ARIPassword     string
	ARIApplication  string

	// Call routing
	FixedDestination string // the second party every bridge dials
	CallerID         string
	Trunk            string // PJSIP trunk the destination is dialed through

	// Transcription
	AWSRegion            string
	TranscribeLanguage   string
	TranscribeSampleRate int32

	// Transcript fan-out (optional)
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
}

// LoadFromEnv builds the configuration from environment variables with
// development defaults.
func LoadFromEnv() *Config {
	return &Config{
		Port:           getEnvOrDefault("PORT", "3000"),
		EnableCORS:     getEnvAsBoolOrDefault("ENABLE_CORS", true),
		APISecretKey:   getEnvOrDefault("API_SECRET_KEY", ""),
		RequestsPerSec: getEnvAsFloatOrDefault("API_RATE_LIMIT", 50),

		ARIURL:          getEnvOrDefault("ARI_URL", "http://localhost:8088/ari"),
		ARIWebsocketURL: getEnvOrDefault("ARI_WEBSOCKET_URL", "ws://localhost:8088/ari/events"),
		ARIUsername:     getEnvOrDefault("ARI_USERNAME", "asterisk"),
		ARIPassword:     getEnvOrDefault("ARI_PASSWORD", "asterisk"),
		ARIApplication:  getEnvOrDefault("ARI_APPLICATION", "audio-control"),

		FixedDestination: getEnvOrDefault("FIXED_DESTINATION", ""),
		CallerID:         getEnvOrDefault("CALLER_ID", ""),
		Trunk:            getEnvOrDefault("SIP_TRUNK", "Twilio_example_sg1"),

		AWSRegion:            getEnvOrDefault("AWS_REGION", "us-east-1"),
		TranscribeLanguage:   getEnvOrDefault("TRANSCRIBE_LANGUAGE", "en-US"),
		TranscribeSampleRate: int32(getEnvAsIntOrDefault("TRANSCRIBE_SAMPLE_RATE", 8000)),

		RedisEnabled:  getEnvAsBoolOrDefault("REDIS_ENABLED", false),
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
	}
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloatOrDefault gets environment variable as float or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
