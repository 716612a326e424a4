package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/policyrag/internal/appctx"
	"github.com/xxxsen/policyrag/internal/extract"
	"github.com/xxxsen/policyrag/internal/handler"
	"github.com/xxxsen/policyrag/internal/job"
	"github.com/xxxsen/policyrag/internal/middleware"
	"github.com/xxxsen/policyrag/internal/schedule"
	"github.com/xxxsen/policyrag/internal/service"
)

func newRunCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app, err := load(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			return runServer(ctx, app)
		},
	}
}

func runServer(ctx context.Context, app *appctx.App) error {
	cfg := app.Config
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logger := logutil.GetLogger(ctx)
	logger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("vector_index", cfg.VectorIndex.Type),
	)

	uploadService := service.NewUploadService(app.Store, app.Extractor, app.Dispatcher, extract.DetectContentType, cfg.HTTP.MaxUploadBytes)
	chatService := service.NewChatService(app.Retrieval, app.AI, cfg.Retrieval.TopK)
	documentService := service.NewDocumentService(app.Index)

	deps := handler.RouterDeps{
		Health:    handler.NewHealthHandler(),
		Uploads:   handler.NewUploadHandler(uploadService),
		Chat:      handler.NewChatHandler(chatService),
		Documents: handler.NewDocumentHandler(documentService),
	}
	if cfg.HTTP.AskIntervalMs > 0 {
		deps.AskLimiter = middleware.RateLimit(time.Duration(cfg.HTTP.AskIntervalMs) * time.Millisecond)
	}

	scheduler := schedule.NewCronScheduler()
	if cfg.EmbedCache.EnableDB {
		if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(app.CacheRepo, cfg.EmbedCache.RetentionDays), cfg.Jobs.EmbedCacheCleanupSpec); err != nil {
			return fmt.Errorf("schedule cache cleanup: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.HTTP.AllowedOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}
