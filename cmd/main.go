package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sashabaranov/go-openai"

	"github.com/fedutinova/lectary/internal/ai"
	"github.com/fedutinova/lectary/internal/auth"
	appconfig "github.com/fedutinova/lectary/internal/config"
	"github.com/fedutinova/lectary/internal/credits"
	"github.com/fedutinova/lectary/internal/database"
	"github.com/fedutinova/lectary/internal/export"
	"github.com/fedutinova/lectary/internal/ingest"
	"github.com/fedutinova/lectary/internal/pipeline"
	"github.com/fedutinova/lectary/internal/ratelimit"
	"github.com/fedutinova/lectary/internal/registry"
	"github.com/fedutinova/lectary/internal/repository"
	"github.com/fedutinova/lectary/internal/server"
	"github.com/fedutinova/lectary/internal/storage"
	httpapi "github.com/fedutinova/lectary/internal/transport/http"
)

func main() {
	cfg := appconfig.Load()
	slog.Info("starting lectary", "addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	storageService, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	slog.Info("storage initialized", "type", storage.GetStorageType(cfg))

	// Redis is optional: without it the rate limiter degrades to the
	// in-process sliding window.
	limiter := ratelimit.NewService(nil)
	if opts, err := redis.ParseURL(cfg.RedisURL); err == nil {
		client := redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unavailable, rate limiting falls back to in-memory", "err", err)
			client.Close()
		} else {
			limiter = ratelimit.NewService(ratelimit.NewRedisLimiter(client))
			defer client.Close()
		}
		pingCancel()
	} else {
		slog.Warn("bad redis url, rate limiting falls back to in-memory", "err", err)
	}

	staging, err := ingest.NewStaging(cfg.UploadDir, cfg.MaxSlidesBytes, cfg.MaxAudioBytes)
	if err != nil {
		slog.Error("failed to prepare staging directory", "err", err)
		os.Exit(1)
	}

	tokens := ingest.NewTokenStore(cfg.AudioImportTTL)
	tokens.StartSweeper(ctx.Done(), cfg.JobCleanupInterval)
	fetcher := ingest.NewRemoteFetcher(staging, cfg.AudioImportHostSuffixes)

	reg := registry.NewMemory()
	registry.StartSweeper(ctx, reg, cfg.JobCleanupInterval, cfg.JobTTL)

	repo := repository.New(db)
	repo.FreeLectureCredits = cfg.FreeLectureCredits
	repo.FreeSlidesCredits = cfg.FreeSlidesCredits
	repo.FreeInterviewCredits = cfg.FreeInterviewCredits
	ledger := credits.NewLedger(db)

	generator := ai.NewOpenAI(openai.NewClient(cfg.OpenAIAPIKey), ai.Models{
		Slides: cfg.ModelSlides,
		Merge:  cfg.ModelMerge,
		Study:  cfg.ModelStudy,
	})

	orch := pipeline.New(reg, generator, ledger, repo, storageService, staging.Cleanup, cfg.JobMaxDuration)

	handlers := &httpapi.Handlers{
		Registry: reg,
		Runner:   orch,
		Ledger:   ledger,
		Users:    repo,
		Limiter:  limiter,
		Staging:  staging,
		Tokens:   tokens,
		Fetcher:  fetcher,
		Renderer: export.NewPDFRenderer(),
		Files:    storageService,
		Allowlist: auth.Allowlist{
			Domains:  cfg.AllowedEmailDomains,
			Patterns: cfg.AllowedEmailPatterns,
		},
		Config: cfg,
	}
	r := server.NewRouter(handlers)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Minute, // large audio uploads stream slowly
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()
}
