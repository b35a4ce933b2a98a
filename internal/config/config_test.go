package config

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	if service != secretService {
		return "", errors.New("unknown service")
	}
	v, ok := m.values[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

// mapBackend is an in-memory ConfigBackend. Non-string values are
// formatted the way a hand-edited JSON file would be read.
type mapBackend map[string]any

func (m mapBackend) Get(key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	return fmt.Sprint(v), true, nil
}

func (m mapBackend) Set(key, val string) error { m[key] = val; return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when the backend is empty.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "mock" {
		t.Errorf("LLM.Provider = %q, want mock", cfg.LLM.Provider)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("Embedding.Dimensions = %d, want 384", cfg.Embedding.Dimensions)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("Retrieval.TopK = %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.Generation.MaxTokens != 1500 || cfg.Generation.Temperature != 0.3 {
		t.Errorf("Generation = %+v", cfg.Generation)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if len(cfg.CORSOriginList()) != 0 || len(cfg.KafkaBrokerList()) != 0 {
		t.Error("lists should default to empty")
	}
}

// TestBackendValues verifies every backend type is read.
func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := mapBackend{
		"server.port":            5000,
		"server.cors_origins":    "http://a.test, http://b.test",
		"llm.provider":           "ollama",
		"ollama.chat_model":      "mistral",
		"generation.temperature": "0.7",
		"storage.backend":        "memory",
		"kafka.brokers":          "k1:9092,k2:9092",
		"redis.cache_ttl":        "1h",
	}

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if got := cfg.CORSOriginList(); len(got) != 2 || got[1] != "http://b.test" {
		t.Errorf("CORSOriginList = %v", got)
	}
	if cfg.LLM.Provider != "ollama" || cfg.Ollama.ChatModel != "mistral" {
		t.Errorf("LLM/Ollama = %+v %+v", cfg.LLM, cfg.Ollama)
	}
	if cfg.Generation.Temperature != 0.7 {
		t.Errorf("Temperature = %v", cfg.Generation.Temperature)
	}
	if got := cfg.KafkaBrokerList(); len(got) != 2 {
		t.Errorf("KafkaBrokerList = %v", got)
	}
	if ttl, _ := cfg.Redis.TTL(); ttl.Hours() != 1 {
		t.Errorf("TTL = %v", ttl)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICKETKB_SERVER_PORT", "7000")
	t.Setenv("TICKETKB_LLM_PROVIDER", "openai")
	t.Setenv("TICKETKB_OPENAI_API_KEY", "env-key")

	cfg, err := loadWith(mapBackend{"server.port": 5000}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.OpenAI.APIKey != "env-key" {
		t.Errorf("OpenAI.APIKey = %q, want env-key", cfg.OpenAI.APIKey)
	}
}

// TestInvalidEnvKeepsDefault verifies a malformed integer is ignored.
func TestInvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICKETKB_RETRIEVAL_TOP_K", "many")

	cfg, err := loadWith(mapBackend{}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("Retrieval.TopK = %d, want 3", cfg.Retrieval.TopK)
	}
}

// TestMissingRequiredField verifies a clear error when the OpenAI key is missing everywhere.
func TestMissingRequiredField(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICKETKB_LLM_PROVIDER", "openai")

	_, err := loadWith(mapBackend{}, mockKeychain{})
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q", err)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		backend mapBackend
		want    string
	}{
		{"unknown provider", mapBackend{"llm.provider": "claude"}, "invalid llm.provider"},
		{"unknown storage", mapBackend{"storage.backend": "mongo"}, "invalid storage.backend"},
		{"postgres without dsn", mapBackend{"storage.backend": "postgres"}, "postgres DSN"},
		{"zero dimensions", mapBackend{"embedding.dimensions": 0}, "embedding.dimensions"},
		{"bad ttl", mapBackend{"redis.cache_ttl": "soon"}, "redis.cache_ttl"},
		{"unparsable stored int", mapBackend{"server.port": "abc"}, "invalid value for server.port"},
		{"unparsable stored float", mapBackend{"generation.temperature": "warm"}, "invalid value for generation.temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(tt.backend, mockKeychain{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestEnvOverride_UnparsableIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICKETKB_RETRIEVAL_TOP_K", "many")

	cfg, err := loadWith(mapBackend{"retrieval.top_k": 5}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval.TopK = %d, want stored value 5", cfg.Retrieval.TopK)
	}
}

// TestKeychainFallback verifies the secret store is consulted when env leaves a secret empty.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICKETKB_LLM_PROVIDER", "openai")
	t.Setenv("TICKETKB_STORAGE_BACKEND", "postgres")

	kc := mockKeychain{values: map[string]string{
		"openai_api_key": "keychain-secret",
		"postgres_dsn":   "postgres://kb@localhost/kb",
	}}
	cfg, err := loadWith(mapBackend{}, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenAI.APIKey != "keychain-secret" {
		t.Errorf("OpenAI.APIKey = %q", cfg.OpenAI.APIKey)
	}
	if cfg.Storage.PostgresDSN != "postgres://kb@localhost/kb" {
		t.Errorf("PostgresDSN = %q", cfg.Storage.PostgresDSN)
	}
}

// TestSecretsIgnoredInBackend verifies secrets are never read from the plain config.
func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(mapBackend{"openai.api_key": "leaked"}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OpenAI.APIKey != "" {
		t.Errorf("OpenAI.APIKey = %q, want empty", cfg.OpenAI.APIKey)
	}
}

func TestSetKey(t *testing.T) {
	b := mapBackend{}
	if err := setKey(b, "server.port", "4100"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if b["server.port"] != "4100" {
		t.Errorf("server.port = %v", b["server.port"])
	}
	if err := setKey(b, "generation.temperature", "0.5"); err != nil {
		t.Fatalf("setKey float: %v", err)
	}
	if err := setKey(b, "generation.temperature", "warm"); err == nil {
		t.Error("expected error for invalid float")
	}
	if err := setKey(b, "server.port", "abc"); err == nil {
		t.Error("expected error for invalid int")
	}
	if err := setKey(b, "openai.api_key", "x"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := setKey(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAll_RedactsSecrets(t *testing.T) {
	cfg := defaults()
	cfg.OpenAI.APIKey = "sk-123"
	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Value, "sk-123") {
			t.Fatalf("secret leaked in %s", ki.Key)
		}
		if ki.Key == "openai.api_key" && ki.Value != "(set)" {
			t.Errorf("openai.api_key = %q", ki.Value)
		}
	}
}
