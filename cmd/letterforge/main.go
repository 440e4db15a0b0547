package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"letterforge/internal/app"
	"letterforge/internal/config"
	"letterforge/internal/server"
	"letterforge/internal/usertoken"
	"letterforge/internal/util"
	"letterforge/pkg/ai"
	"letterforge/pkg/queue"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "letterforge",
	Short:   "Newsletter generation service",
	Long:    "letterforge turns project configuration, article links, and tabular data into ready-to-send newsletters through pluggable generation backends.",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and generation workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.AuthJWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	generationQueue, err := queue.New(queue.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.QueueStream,
		Group:    cfg.QueueGroup,
	})
	if err != nil {
		log.Fatalf("failed to init generation queue: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Builtin:     ai.NewBuiltinBackend(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel),
		Enqueuer: app.EnqueueFunc(func(ctx context.Context, newsletterID string) error {
			_, err := generationQueue.Enqueue(ctx, newsletterID)
			return err
		}),
		EnrichLinks: cfg.EnrichLinks,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:           appCore,
		TokenVerifier: tokenVerifier,
		CallbackToken: cfg.CallbackToken,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	concurrency := cfg.QueueConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	generationQueue.Start(ctx, concurrency, func(ctx context.Context, job queue.JobStatus) error {
		return appCore.ProcessGeneration(ctx, job.NewsletterID)
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("letterforge server listening", "addr", addr, "workers", concurrency)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
		return err
	}
	return nil
}
