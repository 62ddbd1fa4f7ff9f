package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/brimobile1016/VEO3-NEW01/internal/adapter/repo"
	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
	httpapi "github.com/brimobile1016/VEO3-NEW01/internal/http"
	"github.com/brimobile1016/VEO3-NEW01/internal/http/handlers"
	"github.com/brimobile1016/VEO3-NEW01/internal/infra"
	"github.com/brimobile1016/VEO3-NEW01/internal/orchestrator"
	"github.com/brimobile1016/VEO3-NEW01/internal/providers/genai"
	"github.com/brimobile1016/VEO3-NEW01/internal/registry"
	"github.com/brimobile1016/VEO3-NEW01/internal/storage"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	// Konfigurasi & logger
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Job registry: Postgres when a database is configured, in-memory otherwise.
	var jobs domain.Registry
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()

		pg := repo.NewJobRegistry(dbpool)
		if err := pg.InitSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize job schema")
		}
		jobs = pg
		logger.Info().Msg("job registry: postgres")
	} else {
		jobs = registry.NewMemory()
		logger.Info().Msg("job registry: in-memory")
	}

	// Artifact sink: Supabase Storage when configured, local filesystem otherwise.
	var sink storage.Sink
	if cfg.UseSupabase() {
		sb, err := storage.NewSupabase(storage.SupabaseOptions{
			BaseURL:    cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceKey,
			Bucket:     cfg.StorageBucket,
			Logger:     &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure storage")
		}
		if err := sb.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure storage bucket")
		}
		sink = sb
		logger.Info().Str("bucket", cfg.StorageBucket).Msg("artifact sink: supabase storage")
	} else {
		fs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure storage")
		}
		sink = fs
		logger.Info().Str("path", cfg.StoragePath).Msg("artifact sink: local filesystem")
	}

	provider := genai.NewClient(genai.Options{
		BaseURL: cfg.GeminiBaseURL,
		Logger:  &logger,
	})

	orc := orchestrator.New(orchestrator.Options{
		Registry:      jobs,
		Provider:      provider,
		Sink:          sink,
		Logger:        logger,
		BaseContext:   ctx,
		ImageModel:    cfg.ImageModel,
		PollInterval:  cfg.PollInterval,
		PollTimeout:   cfg.PollTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	})

	app := handlers.NewApp(orc, sink, cfg, logger)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Background video runs observe the signal context and resolve their jobs
	// to a terminal state before we exit.
	orc.Wait()
	logger.Info().Msg("server stopped")
}
