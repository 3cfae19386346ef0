// Command guardowl runs the guard assistant HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	guardowl "github.com/guardowl/guardowl"
	"github.com/guardowl/guardowl/conversation"
	convpg "github.com/guardowl/guardowl/conversation/postgres"
	"github.com/guardowl/guardowl/reports"
	reportsweaviate "github.com/guardowl/guardowl/reports/weaviate"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	useMemory := flag.Bool("memory", false, "use in-memory stores (dev only)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(*configPath, *useMemory, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, useMemory bool, logger *slog.Logger) error {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := guardowl.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm, embed, err := buildLLM(cfg, logger)
	if err != nil {
		return err
	}

	reportStore, err := buildReportStore(ctx, cfg, useMemory, embed, logger)
	if err != nil {
		return err
	}

	conversationStore, cleanup, err := buildConversationStore(ctx, cfg, useMemory, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	translate := guardowl.NewQueryTranslator(llm.ChatJSON, time.Now, logger)
	retriever := guardowl.NewRetriever(reportStore, translate, logger)
	summarize := guardowl.NewSummarizer(llm.ChatJSON, logger)
	history := guardowl.NewHistoryManager(conversationStore, summarize, logger)
	processChat := guardowl.NewChatService(llm.Chat, retriever, history, logger)

	handler := guardowl.NewHTTPHandler(processChat, retriever, history, cfg, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr, "provider", cfg.Provider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildLLM selects the chat provider. Embeddings always come from
// OpenAI; Anthropic deployments keep an OpenAI key for them.
func buildLLM(cfg guardowl.Config, logger *slog.Logger) (*guardowl.LLMClient, guardowl.EmbedFn, error) {
	openaiClient, err := guardowl.NewOpenAIClient(guardowl.OpenAIConfig{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		Temperature:    cfg.OpenAI.Temperature,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	switch cfg.Provider {
	case guardowl.ProviderOpenAI:
		return openaiClient, openaiClient.Embed, nil
	case guardowl.ProviderAnthropic:
		anthropicClient, err := guardowl.NewAnthropicClient(guardowl.AnthropicConfig{
			APIKey:    cfg.Anthropic.APIKey,
			BaseURL:   cfg.Anthropic.BaseURL,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating Anthropic client: %w", err)
		}
		anthropicClient.Embed = openaiClient.Embed
		return anthropicClient, openaiClient.Embed, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func buildReportStore(ctx context.Context, cfg guardowl.Config, useMemory bool, embed guardowl.EmbedFn, logger *slog.Logger) (guardowl.ReportStore, error) {
	if useMemory {
		store := reports.NewMemoryStore(nil)
		if cfg.ReportsDataPath != "" {
			seed, err := reports.LoadFile(cfg.ReportsDataPath)
			if err != nil {
				return nil, err
			}
			store.Add(seed...)
			logger.Info("loaded reports into memory store", "count", len(seed))
		}
		return store, nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Weaviate.Host,
		Scheme: cfg.Weaviate.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}

	store := reportsweaviate.New(client, reportsweaviate.Config{
		Class:  cfg.Weaviate.Class,
		Embed:  embed,
		Logger: logger,
	})
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	if cfg.ReportsDataPath != "" {
		count, err := store.Count(ctx)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			seed, err := reports.LoadFile(cfg.ReportsDataPath)
			if err != nil {
				return nil, err
			}
			if err := store.Ingest(ctx, seed); err != nil {
				return nil, err
			}
		} else {
			logger.Info("report collection already populated", "count", count)
		}
	}
	return store, nil
}

func buildConversationStore(ctx context.Context, cfg guardowl.Config, useMemory bool, logger *slog.Logger) (guardowl.ConversationStore, func(), error) {
	noop := func() {}

	if useMemory || cfg.PostgresURL == "" {
		logger.Info("using in-memory conversation store")
		return conversation.NewMemoryStore(), noop, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, noop, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, noop, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, convpg.Migration("")); err != nil {
		pool.Close()
		return nil, noop, fmt.Errorf("running migration: %w", err)
	}

	logger.Info("using postgres conversation store")
	return convpg.New(pool), pool.Close, nil
}
