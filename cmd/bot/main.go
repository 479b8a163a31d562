package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/max-mines/epic-bot/common/id"
	"github.com/max-mines/epic-bot/common/llm"
	"github.com/max-mines/epic-bot/common/logger"
	"github.com/max-mines/epic-bot/common/otel"
	"github.com/max-mines/epic-bot/core/config"
	"github.com/max-mines/epic-bot/internal/chat"
	"github.com/max-mines/epic-bot/internal/engine"
	"github.com/max-mines/epic-bot/internal/http/middleware"
	httprouter "github.com/max-mines/epic-bot/internal/http/router"
	"github.com/max-mines/epic-bot/internal/service/generation"
	"github.com/max-mines/epic-bot/internal/service/issue_tracker"
	"github.com/max-mines/epic-bot/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "epic-bot starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	epicStore, err := store.NewLocalEpicStore(cfg.EpicDir)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open epic store", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "epic store ready", "dir", cfg.EpicDir)

	var answerCache store.AnswerCache = store.NewMemoryAnswerCache()
	if cfg.Redis.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}

		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		answerCache = store.NewRedisAnswerCache(redisClient)
		slog.InfoContext(ctx, "redis connected, answer cache is persistent")
	}

	llmClient, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "llm client ready", "provider", cfg.LLM.Provider, "model", llmClient.Model())

	tracker, err := issue_tracker.NewGitLabService(cfg.GitLab)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create gitlab client", "error", err)
		os.Exit(1)
	}

	bot := engine.New(
		engine.Config{
			Retention:      cfg.Session.Retention,
			SweepInterval:  cfg.Session.SweepInterval,
			MaxRefinements: cfg.Session.MaxRefinement,
		},
		engine.NewMemoryRegistry(),
		answerCache,
		epicStore,
		tracker,
		generation.NewService(llmClient),
		chat.NewClient(cfg.Chat),
	)

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go bot.RunSweeper(sweeperCtx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, bot)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, bot *engine.Engine) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, bot, httprouter.RouterConfig{
		SigningSecret: cfg.Chat.SigningSecret,
	})

	return router
}
