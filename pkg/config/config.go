// Package config loads runtime configuration from the environment through
// a single Load() that fills one sub-config per concern.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration object passed to the composition root.
type Config struct {
	Storage   StorageConfig
	Memory    MemoryConfig
	Context   ContextConfig
	LLM       LLMConfig
	Crypto    CryptoConfig
	EventBus  EventBusConfig
	Backup    BackupConfig
	LogLevel  string
	DebugMode bool
}

// StorageConfig selects and configures the metadata and vector stores.
type StorageConfig struct {
	// Backend is "sqlite" (default, local-first) or "postgres".
	Backend      string
	SQLitePath   string
	PostgresDSN  string
	VectorDir    string
	DocumentsDir string
}

// MemoryConfig configures the memory service's ranking and self-healing.
type MemoryConfig struct {
	SimilarityWeight   float64
	RecencyWeight      float64
	ImportanceWeight   float64
	RecencyHalfLifeDays float64
	SelfHealingEnabled bool
}

// ContextConfig configures the context assembler's token budgeting.
type ContextConfig struct {
	ReservedSystemTokens   int
	ReservedUserTokens     int
	ReservedResponseTokens int
	ContextRatio           float64
}

// LLMConfig selects the primary/fallback model providers and their keys.
type LLMConfig struct {
	Primary          string
	Fallback         string
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	AzureEndpoint    string
	AzureAPIKey      string
	GeminiAPIKey     string
	AWSRegion        string
	RequestTimeout   time.Duration
	EmbeddingTimeout time.Duration
}

// CryptoConfig configures master-key acquisition.
type CryptoConfig struct {
	KeyringService string
	KeyringAccount string
	PBKDF2Iterations int
}

// EventBusConfig configures the in-process event bus.
type EventBusConfig struct {
	HistoryLimit int
	DebugMode    bool
}

// BackupConfig configures the storage manager's retention policy.
type BackupConfig struct {
	Dir         string
	MaxCount    int
	MaxAge      time.Duration
	EncryptByDefault bool
}

// Load reads configuration from the environment, applying defaults that
// match a single-user local-first deployment.
func Load() *Config {
	return &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		DebugMode: getEnvBool("DEBUG", false),
		Storage: StorageConfig{
			Backend:      getEnv("STORAGE_BACKEND", "sqlite"),
			SQLitePath:   getEnv("SQLITE_PATH", "./data/personal_ai.db"),
			PostgresDSN:  getEnv("POSTGRES_DSN", ""),
			VectorDir:    getEnv("VECTOR_DIR", "./data/vectors"),
			DocumentsDir: getEnv("DOCUMENTS_DIR", "./data/documents"),
		},
		Memory: MemoryConfig{
			SimilarityWeight:    getEnvFloat("MEMORY_SIMILARITY_WEIGHT", 0.65),
			RecencyWeight:       getEnvFloat("MEMORY_RECENCY_WEIGHT", 0.25),
			ImportanceWeight:    getEnvFloat("MEMORY_IMPORTANCE_WEIGHT", 0.10),
			RecencyHalfLifeDays: getEnvFloat("MEMORY_RECENCY_TAU_DAYS", 14.0),
			SelfHealingEnabled:  getEnvBool("MEMORY_SELF_HEALING", true),
		},
		Context: ContextConfig{
			ReservedSystemTokens:   getEnvInt("CONTEXT_RESERVED_SYSTEM_TOKENS", 200),
			ReservedUserTokens:     getEnvInt("CONTEXT_RESERVED_USER_TOKENS", 200),
			ReservedResponseTokens: getEnvInt("CONTEXT_RESERVED_RESPONSE_TOKENS", 500),
			ContextRatio:           getEnvFloat("CONTEXT_RATIO", 0.75),
		},
		LLM: LLMConfig{
			Primary:          getEnv("LLM_PRIMARY", "anthropic"),
			Fallback:         getEnv("LLM_FALLBACK", "openai"),
			AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			AzureEndpoint:    getEnv("AZURE_OPENAI_ENDPOINT", ""),
			AzureAPIKey:      getEnv("AZURE_OPENAI_API_KEY", ""),
			GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
			AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
			RequestTimeout:   getEnvDuration("LLM_REQUEST_TIMEOUT", 60*time.Second),
			EmbeddingTimeout: getEnvDuration("LLM_EMBEDDING_TIMEOUT", 30*time.Second),
		},
		Crypto: CryptoConfig{
			KeyringService:   getEnv("CRYPTO_KEYRING_SERVICE", "personal_ai_agent_go"),
			KeyringAccount:   getEnv("CRYPTO_KEYRING_ACCOUNT", "encryption_master_key"),
			PBKDF2Iterations: getEnvInt("CRYPTO_PBKDF2_ITERATIONS", 100_000),
		},
		EventBus: EventBusConfig{
			HistoryLimit: getEnvInt("EVENTBUS_HISTORY_LIMIT", 100),
			DebugMode:    getEnvBool("EVENTBUS_DEBUG", false),
		},
		Backup: BackupConfig{
			Dir:              getEnv("BACKUP_DIR", "./data/backups"),
			MaxCount:         getEnvInt("BACKUP_MAX_COUNT", 10),
			MaxAge:           getEnvDuration("BACKUP_MAX_AGE", 90*24*time.Hour),
			EncryptByDefault: getEnvBool("BACKUP_ENCRYPT_DEFAULT", true),
		},
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvStringSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return fallback
}
