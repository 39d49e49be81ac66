// Package main runs the meeting service HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/masilo-dev/alphaclone-meetings/config"
	"github.com/masilo-dev/alphaclone-meetings/internal/auth"
	"github.com/masilo-dev/alphaclone-meetings/internal/meetings"
	"github.com/masilo-dev/alphaclone-meetings/internal/middleware"
	"github.com/masilo-dev/alphaclone-meetings/internal/models"
	"github.com/masilo-dev/alphaclone-meetings/internal/provider"
	"github.com/masilo-dev/alphaclone-meetings/internal/quota"
	"github.com/masilo-dev/alphaclone-meetings/internal/realtime"
	"github.com/masilo-dev/alphaclone-meetings/internal/recordings"
	"github.com/masilo-dev/alphaclone-meetings/internal/tenants"
	"github.com/masilo-dev/alphaclone-meetings/internal/worker"
	"github.com/masilo-dev/alphaclone-meetings/pkg/database"
	"github.com/masilo-dev/alphaclone-meetings/pkg/queue"
	"github.com/masilo-dev/alphaclone-meetings/pkg/redis"
	"github.com/masilo-dev/alphaclone-meetings/pkg/response"
	"github.com/masilo-dev/alphaclone-meetings/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	rooms := newRoomProvider(cfg.Provider, logger)

	// Tenants and plan quota
	tenantRepo := tenants.NewRepository(pool)
	tenantHandler := tenants.NewHandler(tenantRepo)
	meetingRepo := meetings.NewRepository(pool)
	enforcer := quota.New(tenantRepo, meetingRepo, cfg.Quota.UnrestrictedTenantID, logger)

	// Meetings
	jobQueue := queue.NewQueue(rdb.Client, logger)
	statusPublisher := realtime.NewStatusPublisher(hub)
	meetingSvc := meetings.NewService(meetingRepo, rooms, enforcer, statusPublisher, jobQueue, logger)
	meetingHandler := meetings.NewHandler(meetingSvc, meetingRepo, logger)

	// End the meeting when the last connected participant drops off.
	hub.SetAudienceChangeHandler(func(meetingID uuid.UUID, count int) {
		if count > 0 {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := meetingSvc.End(ctx, meetingID, uuid.Nil, models.EndReasonAllLeft, 0); err != nil {
				if err != meetings.ErrMeetingFinished && err != meetings.ErrNotStarted && err != meetings.ErrMeetingNotFound {
					logger.Warn("auto end on empty meeting failed", zap.Error(err), zap.String("meeting_id", meetingID.String()))
				}
			}
		}()
	})

	// Recordings
	recordingRepo := recordings.NewRepository(pool)
	recordingHandler := recordings.NewHandler(recordingRepo, meetingRepo, s3Client, logger)
	recordingWebhook := recordings.NewWebhookHandler(recordingRepo, jobQueue, cfg.Webhook.Secret, logger)
	processor := worker.NewProcessor(recordingRepo, rooms, s3Client, jobQueue, logger)
	sweeper := worker.NewSweeper(meetingSvc, time.Duration(cfg.Worker.SweepIntervalSec)*time.Second, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public: link validation for landing pages (read-only, never burns the token)
	router.GET("/meet/:token", meetingHandler.Validate)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/tenants/me/plan", tenantHandler.GetPlan)
		api.PUT("/tenants/me/plan", middleware.RequireRole("admin"), tenantHandler.SetPlan)

		api.GET("/meetings", meetingHandler.List)
		api.POST("/meetings", meetingHandler.Create)
		api.GET("/meetings/:id", meetingHandler.GetByID)
		api.GET("/meetings/:id/status", meetingHandler.Status)
		api.POST("/meetings/:id/end", meetingHandler.End)
		api.POST("/meetings/:id/cancel", meetingHandler.Cancel)

		// Redeems the single-use link and returns provider credentials
		api.POST("/meet/:token/join", meetingHandler.Join)

		api.GET("/meetings/:id/recordings", recordingHandler.ListByMeeting)
		api.GET("/recordings/:id/download-url", recordingHandler.GenerateDownloadURL)
	}

	// Webhooks (no JWT; HMAC signature verified in handler when configured)
	router.POST("/webhooks/recording-ready", recordingWebhook.RecordingReady)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background jobs (room cleanup, recording upload) and overdue-meeting sweep
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go processor.Run(workerCtx)
	go sweeper.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newRoomProvider(cfg config.ProviderConfig, logger *zap.Logger) provider.RoomProvider {
	switch cfg.Vendor {
	case "livekit":
		return provider.NewLiveKit(provider.LiveKitConfig{
			APIKey:    cfg.LiveKit.APIKey,
			APISecret: cfg.LiveKit.APISecret,
			URL:       cfg.LiveKit.URL,
		}, logger)
	default:
		return provider.NewDaily(provider.DailyConfig{
			APIKey:  cfg.Daily.APIKey,
			BaseURL: cfg.Daily.BaseURL,
		}, logger)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
