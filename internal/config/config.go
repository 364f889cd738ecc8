package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string

	// Upstream model access
	OpenAIKeys       []string // pool of upstream API keys, JSON array in OPENAI_KEYS
	LLMBaseURL       string   // OpenAI-compatible endpoint
	LLMModel         string
	LLMFallbackModel string
	SummaryModel     string
	LLMTimeout       time.Duration
	LLMMaxRetries    int
	MaxTokens        int

	// Session lifecycle
	SessionTTL      time.Duration // how long a session stays reusable
	CleanupInterval time.Duration // expiry sweeper cadence
	CleanupTimeout  time.Duration // per-session reclaim budget

	// Conversation turn behavior
	BufferTurns      int // turns kept as short-term memory (2 entries each)
	SummaryWordLimit int // answers longer than this get summarized
	MaxToolRounds    int // tool-call rounds allowed per turn
	AuthResetMinutes int // minutes before a transactional turn re-triggers auth

	// Collaborators
	RetrieverURL   string
	PlatformAPIURL string

	// Session token signing
	JWTSecret string

	// Admin routes (cleanup trigger, debug views)
	AdminAPIKey string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", ""),

		OpenAIKeys:       getKeysEnv("OPENAI_KEYS"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4.1-mini"),
		LLMFallbackModel: getEnv("LLM_FALLBACK_MODEL", "gpt-3.5-turbo"),
		SummaryModel:     getEnv("SUMMARY_MODEL", "gpt-4.1-mini"),
		LLMTimeout:       getDurationEnv("LLM_TIMEOUT_SECONDS", 60) * time.Second,
		LLMMaxRetries:    getIntEnv("LLM_MAX_RETRIES", 3),
		MaxTokens:        getIntEnv("MAX_COMPLETION_TOKENS", 250),

		SessionTTL:      getDurationEnv("SESSION_TTL_MINUTES", 180) * time.Minute,
		CleanupInterval: getDurationEnv("CLEANUP_INTERVAL_MINUTES", 10) * time.Minute,
		CleanupTimeout:  getDurationEnv("CLEANUP_TIMEOUT_SECONDS", 10) * time.Second,

		BufferTurns:      getIntEnv("BUFFER_TURNS", 10),
		SummaryWordLimit: getIntEnv("SUMMARY_WORD_LIMIT", 100),
		MaxToolRounds:    getIntEnv("MAX_TOOL_ROUNDS", 5),
		AuthResetMinutes: getIntEnv("AUTH_RESET_MINUTES", 10),

		RetrieverURL:   getEnv("RETRIEVER_URL", "http://localhost:8090"),
		PlatformAPIURL: getEnv("PLATFORM_API_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	return time.Duration(getIntEnv(key, defaultValue))
}

// getKeysEnv parses a JSON string array of upstream API keys
func getKeysEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		log.Printf("⚠️  [CONFIG] %s is not a valid JSON array: %v", key, err)
		return nil
	}
	return keys
}
