package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	LLM        LLMConfig
	Ollama     OllamaConfig
	OpenAI     OpenAIConfig
	Embedding  EmbeddingConfig
	Retrieval  RetrievalConfig
	Generation GenerationConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
}

type ServerConfig struct {
	Port        int
	CORSOrigins string // comma-separated; empty allows any origin
}

type LogConfig struct {
	Level string
}

type LLMConfig struct {
	Provider string // mock, ollama or openai
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type OpenAIConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
	APIKey     string
}

type EmbeddingConfig struct {
	Dimensions int
}

type RetrievalConfig struct {
	TopK int
}

type GenerationConfig struct {
	MaxTokens   int
	Temperature float64
}

type StorageConfig struct {
	Backend     string // memory, sqlite or postgres
	DataDir     string
	PostgresDSN string
}

type RedisConfig struct {
	Addr     string // empty disables the embedding cache
	CacheTTL string
}

type KafkaConfig struct {
	Brokers string // comma-separated; empty logs audit events instead
	Topic   string
}

// CORSOriginList splits Server.CORSOrigins.
func (c Config) CORSOriginList() []string { return splitList(c.Server.CORSOrigins) }

// KafkaBrokerList splits Kafka.Brokers.
func (c Config) KafkaBrokerList() []string { return splitList(c.Kafka.Brokers) }

// TTL parses CacheTTL. Zero means entries never expire.
func (r RedisConfig) TTL() (time.Duration, error) {
	if r.CacheTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.CacheTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid redis.cache_ttl %q: %w", r.CacheTTL, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Provider: "mock",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-ada-002",
		},
		Embedding: EmbeddingConfig{
			Dimensions: 384,
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Generation: GenerationConfig{
			MaxTokens:   1500,
			Temperature: 0.3,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			DataDir: defaultDataDir(),
		},
		Redis: RedisConfig{
			CacheTTL: "24h",
		},
		Kafka: KafkaConfig{
			Topic: "ticketkb.audit",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.ticketkb.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/ticketkb/config.json
// and secrets come from environment variables or
// $XDG_DATA_HOME/ticketkb/secrets.json.
//
// Environment variables (TICKETKB_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.LLM.Provider {
	case "mock", "ollama":
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return fmt.Errorf("missing required config: OpenAI API key. "+
				"Set it via environment variable TICKETKB_OPENAI_API_KEY%s", secretHint("openai_api_key"))
		}
	default:
		return fmt.Errorf("invalid llm.provider %q: want mock, ollama or openai", cfg.LLM.Provider)
	}

	switch cfg.Storage.Backend {
	case "memory", "sqlite":
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("missing required config: postgres DSN. "+
				"Set it via environment variable TICKETKB_STORAGE_POSTGRES_DSN%s", secretHint("postgres_dsn"))
		}
	default:
		return fmt.Errorf("invalid storage.backend %q: want memory, sqlite or postgres", cfg.Storage.Backend)
	}

	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", cfg.Retrieval.TopK)
	}
	if _, err := cfg.Redis.TTL(); err != nil {
		return err
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
