package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/ticketkb/internal/api"
	"github.com/kalambet/ticketkb/internal/audit"
	"github.com/kalambet/ticketkb/internal/composer"
	"github.com/kalambet/ticketkb/internal/config"
	"github.com/kalambet/ticketkb/internal/drafting"
	"github.com/kalambet/ticketkb/internal/engine"
	"github.com/kalambet/ticketkb/internal/kb"
	"github.com/kalambet/ticketkb/internal/metrics"
	"github.com/kalambet/ticketkb/internal/pipeline"
	"github.com/kalambet/ticketkb/internal/retrieval"
	"github.com/kalambet/ticketkb/internal/review"
	"github.com/kalambet/ticketkb/internal/storage"
)

// app holds every long-lived component. It is built once per process.
type app struct {
	cfg      config.Config
	engine   engine.Engine
	store    kb.Store
	cache    *retrieval.RedisCache
	auditor  audit.Publisher
	metrics  *metrics.Metrics
	creator  *drafting.Creator
	reviewer *review.Service
	searcher *pipeline.Searcher
}

func setupLogging(cfg config.Config) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	eng, err := engine.Select(engine.SelectConfig{
		Provider:         cfg.LLM.Provider,
		Dimensions:       cfg.Embedding.Dimensions,
		OllamaBaseURL:    cfg.Ollama.BaseURL,
		OllamaChatModel:  cfg.Ollama.ChatModel,
		OllamaEmbedModel: cfg.Ollama.EmbedModel,
		OpenAI: engine.OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			ChatModel:  cfg.OpenAI.ChatModel,
			EmbedModel: cfg.OpenAI.EmbedModel,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("selecting llm provider: %w", err)
	}
	if err := prepareEngine(ctx, eng, cfg.Embedding.Dimensions, os.Stderr); err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Config{
		Backend:     cfg.Storage.Backend,
		DataDir:     cfg.Storage.DataDir,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &app{cfg: cfg, engine: eng, store: store, metrics: metrics.New()}

	embOpts := []retrieval.Option{
		retrieval.WithFailureHook(func() { a.metrics.UpstreamFailure("embed") }),
	}
	if cfg.Redis.Addr != "" {
		ttl, _ := cfg.Redis.TTL()
		cache, err := retrieval.NewRedisCache(ctx, cfg.Redis.Addr, ttl)
		if err != nil {
			// The cache is an optimization; run without it.
			slog.Warn("redis embedding cache unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else {
			a.cache = cache
			embOpts = append(embOpts, retrieval.WithCache(cache, eng.Provider()+":"+embedModel(cfg)))
		}
	}
	embedder := retrieval.NewEmbedder(eng, cfg.Embedding.Dimensions, embOpts...)

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		a.auditor = audit.NewKafkaPublisher(brokers, cfg.Kafka.Topic)
	} else {
		a.auditor = audit.NewLogPublisher()
	}

	a.creator = drafting.NewCreator(eng, store,
		drafting.WithGenerateOptions(engine.GenerateOptions{
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
		}),
		drafting.WithAudit(a.auditor),
		drafting.WithMetrics(a.metrics),
	)
	a.reviewer = review.NewService(store, embedder, a.auditor, a.metrics)
	a.searcher = pipeline.NewSearcher(store, embedder, eng, composer.New(0), a.metrics)
	return a, nil
}

// prepareEngine pulls missing local models and checks the embedding size.
// An unreachable provider only logs a warning: drafts fall back to the
// placeholder text and embeddings to the zero vector. A provider that answers
// with a different vector length than embedding.dimensions is a
// configuration error.
func prepareEngine(ctx context.Context, eng engine.Engine, dims int, w io.Writer) error {
	if mm, ok := eng.(interface {
		engine.ModelManager
		Models() []string
	}); ok {
		if err := engine.EnsureReady(ctx, mm, mm.Models(), w); err != nil {
			slog.Warn("llm provider not ready, continuing degraded", "provider", eng.Provider(), "error", err)
			return nil
		}
	}

	err := engine.CheckDimensions(ctx, eng, dims)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrDimensionMismatch):
		return fmt.Errorf("%w; set embedding.dimensions to match the embedding model", err)
	default:
		slog.Warn("embedding provider unavailable, continuing degraded", "provider", eng.Provider(), "error", err)
		return nil
	}
}

func embedModel(cfg config.Config) string {
	switch cfg.LLM.Provider {
	case "ollama":
		return cfg.Ollama.EmbedModel
	case "openai":
		return cfg.OpenAI.EmbedModel
	default:
		return fmt.Sprintf("mock-%d", cfg.Embedding.Dimensions)
	}
}

func (a *app) deps() api.Deps {
	return api.Deps{
		Store:       a.store,
		Creator:     a.creator,
		Reviewer:    a.reviewer,
		Searcher:    a.searcher,
		Metrics:     a.metrics,
		DefaultTopK: a.cfg.Retrieval.TopK,
		CORSOrigins: a.cfg.CORSOriginList(),
	}
}

func (a *app) Close() {
	if err := a.auditor.Close(); err != nil {
		slog.Warn("closing audit publisher", "error", err)
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("closing redis cache", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}
