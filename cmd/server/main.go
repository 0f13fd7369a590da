package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"flashdeck/internal/api"
	"flashdeck/internal/config"
	"flashdeck/internal/db"
	"flashdeck/internal/kv"
	"flashdeck/internal/logger"
	"flashdeck/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	completer, closeCompleter, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCompleter()

	workspace := services.NewWorkspace(services.WorkspaceConfig{
		Completer: completer,
		Decks:     services.NewDeckStore(kv.WithQuota(store, cfg.StoreQuotaBytes), log.Named("decks"), time.Now),
		Reviews:   services.NewReviewScheduler(time.Now),
		Logger:    log,
	})
	server := api.NewServer(workspace, log.Named("api"), cfg.MaxUploadBytes)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("provider", cfg.LLMProvider),
			zap.String("store", cfg.StoreBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (kv.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := kv.NewRedisStore(client)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddress, err)
		}
		return store, func() { _ = client.Close() }, nil
	case config.BackendMemory:
		log.Warn("saved decks are kept in memory and lost on restart")
		return kv.NewMemoryStore(), func() {}, nil
	default:
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		return kv.NewSQLiteStore(conn), func() { _ = conn.Close() }, nil
	}
}

func newCompleter(ctx context.Context, cfg config.Config) (services.Completer, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		c, err := services.NewOllamaCompleter(cfg.OllamaURL, cfg.OllamaModel, cfg.LLMTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("create ollama client: %w", err)
		}
		return c, func() {}, nil
	case config.ProviderGemini:
		c, err := services.NewGeminiCompleter(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.LLMTimeout)
		if err != nil {
			return nil, nil, err
		}
		return c, closer(c), nil
	default:
		return services.NewOpenAICompleter(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEndpoint, cfg.LLMTimeout), func() {}, nil
	}
}

func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
