package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vbonduro/nutrilens/internal/config"
	"github.com/vbonduro/nutrilens/internal/credential"
	"github.com/vbonduro/nutrilens/internal/db"
	"github.com/vbonduro/nutrilens/internal/llm"
	"github.com/vbonduro/nutrilens/internal/llm/claude"
	"github.com/vbonduro/nutrilens/internal/llm/ollama"
	"github.com/vbonduro/nutrilens/internal/llm/vertex"
	"github.com/vbonduro/nutrilens/internal/logging"
	"github.com/vbonduro/nutrilens/internal/metrics"
	"github.com/vbonduro/nutrilens/internal/photostore"
	"github.com/vbonduro/nutrilens/internal/photostore/gcs"
	"github.com/vbonduro/nutrilens/internal/photostore/local"
	"github.com/vbonduro/nutrilens/internal/service"
	"github.com/vbonduro/nutrilens/internal/store"
	"github.com/vbonduro/nutrilens/internal/web"
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	creds := credential.NewCache(credential.NewResolver(cfg.CredentialsDir, logger))

	model := llm.Initialize(logger, func() (llm.Generator, error) {
		return newGenerator(ctx, cfg, creds, logger)
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	m.SetModelReady(model.Ready())

	photoStg, closePhotos, err := newPhotoStore(ctx, cfg, creds, logger)
	if err != nil {
		logger.Error("failed to initialize photo store", "error", err)
		return
	}
	defer closePhotos()

	svc := service.NewNutritionService(model, store.NewAnalysisStore(database), photoStg, m, logger)
	server := web.NewServer(svc, model, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)

	if err := server.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

// newGenerator builds the configured model backend. Errors here leave the
// model handle degraded; the server still starts.
func newGenerator(ctx context.Context, cfg *config.Config, creds *credential.Cache, logger *slog.Logger) (llm.Generator, error) {
	switch cfg.ModelBackend {
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			return nil, errors.New("CLAUDE_API_KEY is required when MODEL_BACKEND=claude")
		}
		logger.Info("using Claude model backend", "model", cfg.ClaudeModel)
		return claude.NewClaudeGenerator(cfg.ClaudeAPIKey, cfg.ClaudeModel), nil
	case "ollama":
		logger.Info("using Ollama model backend", "model", cfg.OllamaModel)
		return ollama.NewOllamaGenerator(cfg.OllamaHost, cfg.OllamaModel), nil
	default:
		cred, err := creds.Resolve(credential.KindVertexAI)
		if err != nil {
			return nil, err
		}
		logger.Info("using Vertex AI model backend", "model", cfg.VertexModel, "location", cfg.GCPLocation)
		return vertex.New(ctx, cred, vertex.Config{
			Project:  cfg.GCPProject,
			Location: cfg.GCPLocation,
			Model:    cfg.VertexModel,
		})
	}
}

// newPhotoStore returns a nil store when photos are disabled; the service
// then skips saving uploads.
func newPhotoStore(ctx context.Context, cfg *config.Config, creds *credential.Cache, logger *slog.Logger) (photostore.PhotoStore, func(), error) {
	switch cfg.PhotoBackend {
	case "gcs":
		cred, err := creds.Resolve(credential.KindFirebase)
		if err != nil {
			return nil, nil, err
		}
		stg, err := gcs.New(ctx, cred, cfg.PhotoBucket)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storing photos in Cloud Storage", "bucket", cfg.PhotoBucket)
		return stg, func() {
			if err := stg.Close(); err != nil {
				logger.Error("failed to close storage client", "error", err)
			}
		}, nil
	case "none":
		logger.Info("photo storage disabled")
		return nil, func() {}, nil
	default:
		stg, err := local.NewLocalPhotoStore(cfg.PhotoPath, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storing photos on local disk", "path", cfg.PhotoPath)
		return stg, func() {}, nil
	}
}
