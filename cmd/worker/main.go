// Package main runs the background job worker (room cleanup, recording upload, overdue-meeting sweep).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/masilo-dev/alphaclone-meetings/config"
	"github.com/masilo-dev/alphaclone-meetings/internal/meetings"
	"github.com/masilo-dev/alphaclone-meetings/internal/provider"
	"github.com/masilo-dev/alphaclone-meetings/internal/quota"
	"github.com/masilo-dev/alphaclone-meetings/internal/realtime"
	"github.com/masilo-dev/alphaclone-meetings/internal/recordings"
	"github.com/masilo-dev/alphaclone-meetings/internal/tenants"
	"github.com/masilo-dev/alphaclone-meetings/internal/worker"
	"github.com/masilo-dev/alphaclone-meetings/pkg/database"
	"github.com/masilo-dev/alphaclone-meetings/pkg/queue"
	"github.com/masilo-dev/alphaclone-meetings/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	rooms := newRoomProvider(cfg.Provider, logger)

	// Status changes from the sweep reach clients through Redis pub/sub;
	// this hub holds no WebSocket connections of its own.
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	statusPublisher := realtime.NewStatusPublisher(hub)

	tenantRepo := tenants.NewRepository(pool)
	meetingRepo := meetings.NewRepository(pool)
	enforcer := quota.New(tenantRepo, meetingRepo, cfg.Quota.UnrestrictedTenantID, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	meetingSvc := meetings.NewService(meetingRepo, rooms, enforcer, statusPublisher, jobQueue, logger)

	recRepo := recordings.NewRepository(pool)
	processor := worker.NewProcessor(recRepo, rooms, s3Client, jobQueue, logger)
	sweeper := worker.NewSweeper(meetingSvc, time.Duration(cfg.Worker.SweepIntervalSec)*time.Second, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go sweeper.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
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
