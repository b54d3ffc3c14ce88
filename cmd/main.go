package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/MimeLyc/sales-playbook/internal/analysis"
	"github.com/MimeLyc/sales-playbook/internal/batch"
	"github.com/MimeLyc/sales-playbook/internal/config"
	"github.com/MimeLyc/sales-playbook/internal/files"
	"github.com/MimeLyc/sales-playbook/internal/httpapi"
	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/MimeLyc/sales-playbook/internal/llm"
	"github.com/MimeLyc/sales-playbook/internal/maintenance"
	"github.com/MimeLyc/sales-playbook/internal/metrics"
	"github.com/MimeLyc/sales-playbook/internal/outcome"
	"github.com/MimeLyc/sales-playbook/internal/persistence"
	"github.com/MimeLyc/sales-playbook/internal/progress"
	"github.com/MimeLyc/sales-playbook/internal/storage"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

const shutdownTimeout = 30 * time.Second

type scheduler interface {
	Start(ctx context.Context) error
	Stop()
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type drainer interface {
	Shutdown(ctx context.Context) error
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	log.Debug("Loaded configuration:\n%s", cfg)
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to start: %v", err)
	}
	defer app.close()

	if err := runWithComponents(ctx, cfg, app.janitor, app.server, app.orchestrator); err != nil {
		log.Fatal("Server stopped with error: %v", err)
	}
	log.Info("Shutdown complete")
}

type application struct {
	store        persistence.Store
	orchestrator *batch.Orchestrator
	janitor      *maintenance.Janitor
	server       *httpapi.Server
	redis        *redis.Client
}

func (a *application) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Error("Failed to close store: %v", err)
		}
	}
}

func build(ctx context.Context, cfg *config.Config) (*application, error) {
	app := &application{}

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	app.store = store

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		app.close()
		return nil, err
	}

	gen, err := newGenerator(ctx, cfg.LLM)
	if err != nil {
		app.close()
		return nil, err
	}
	gen = llm.NewLimited(gen, cfg.LLM.MaxConcurrency)

	var transcriber llm.Transcriber
	if cfg.Transcription.APIKey != "" {
		t, err := llm.NewAssemblyAITranscriber(cfg.Transcription.APIKey, cfg.Transcription.Language)
		if err != nil {
			app.close()
			return nil, err
		}
		transcriber = t
	} else {
		log.Warn("ASSEMBLYAI_API_KEY is not set, audio files will be rejected")
	}

	responseLang := cfg.LLM.ResponseLanguage()
	detector := outcome.NewClassifier(gen, responseLang)
	pipeline := analysis.NewPipeline(gen, responseLang, analysis.WithExtractionConcurrency(cfg.Batch.ExtractionConcurrency))
	analyses := analysis.NewService(pipeline, store, detector)
	fileSvc := files.NewService(backend, store, "")

	bus := progress.NewBus(0)
	var publisher progress.Publisher = bus
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		app.redis = redis.NewClient(opts)
		bridge := progress.NewRedisBridge(app.redis, bus, cfg.Redis.ChannelPrefix)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Redis progress relay stopped: %v", err)
			}
		}()
		publisher = bridge
	}

	tracker := jobs.NewTracker(store)
	app.orchestrator = batch.New(batch.Deps{
		Tracker:     tracker,
		Bus:         bus,
		Publisher:   publisher,
		Transcriber: transcriber,
		Detector:    detector,
		Analyses:    analyses,
		Files:       fileSvc,
	}, batch.Options{
		ConcurrencyLimit: cfg.Batch.ConcurrencyLimit,
		RetryAttempts:    cfg.Batch.RetryAttempts,
		RetryBaseDelay:   cfg.Batch.RetryBaseDelay,
	})

	app.janitor = maintenance.New(tracker, store, publisher, maintenance.Options{
		CronExpr:       cfg.Maintenance.CronExpr,
		StaleJobAfter:  cfg.Maintenance.StaleJobAfter,
		TempFileMaxAge: cfg.Maintenance.TempFileMaxAge,
	})

	app.server = httpapi.NewServer(app.orchestrator, analyses, fileSvc,
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled))
	return app, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (persistence.Store, error) {
	if cfg.URL != "" {
		log.Info("Using postgres store")
		return persistence.NewPostgresStore(ctx, cfg.URL)
	}
	path := cfg.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	log.Info("Using sqlite store at %s", path)
	return persistence.NewSQLiteStore(path)
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case config.StorageMinio:
		backend, err := storage.NewMinioBackend(storage.MinioConfig(cfg.Minio))
		if err != nil {
			return nil, err
		}
		if err := backend.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		log.Info("Storing uploads in minio bucket %s", cfg.Minio.Bucket)
		return backend, nil
	default:
		log.Info("Storing uploads under %s", cfg.Path)
		return storage.NewLocalBackend(cfg.Path)
	}
}

func newGenerator(ctx context.Context, cfg config.LLMConfig) (llm.TextGenerator, error) {
	llmCfg := cfg.Config
	switch cfg.Provider {
	case config.ProviderGemini:
		return llm.NewGeminiClient(ctx, &llmCfg)
	default:
		return llm.NewClient(&llmCfg)
	}
}

// runWithComponents starts maintenance and the HTTP server, then blocks
// until ctx is cancelled or the server fails.
func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	sched scheduler,
	srv httpServer,
	batches drainer,
) error {
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err, ok := <-errCh:
		if ok {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown: %v", err)
	}
	if batches != nil {
		if err := batches.Shutdown(shutdownCtx); err != nil {
			log.Error("Batch shutdown: %v", err)
		}
	}
	sched.Stop()
	return runErr
}
