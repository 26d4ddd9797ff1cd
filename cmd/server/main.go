package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/api"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/cache"
	cfgpkg "github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/config"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/events"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/logger"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/metrics"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/repository"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/service"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/storage"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/ws"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(logger.Config{Development: cfg.Development})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx := context.Background()

	mc, err := repository.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		zlog.Fatalw("mongo init", "error", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()

	db := mc.Database(cfg.Mongo.Database)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		zlog.Warnw("ensure indexes", "error", err)
	}

	rdb, err := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zlog.Fatalw("redis init", "error", err)
	}
	defer rdb.Close()

	var producer *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, zlog)
		defer func() { _ = producer.Close() }()
	}

	var blobs *storage.S3Store
	if cfg.S3.Bucket != "" {
		blobs, err = storage.NewS3Store(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.PublicRead)
		if err != nil {
			zlog.Fatalw("s3 init", "error", err)
		}
	}

	convRepo := repository.NewMongoConversations(db.Collection(repository.ConversationsCollection))
	msgRepo := repository.NewMongoMessages(db.Collection(repository.MessagesCollection))
	taskRepo := repository.NewMongoTasks(db.Collection(repository.TasksCollection))

	metrics.Init()

	presence := cache.NewPresenceStore(rdb, cfg.Redis.Prefix)
	hub := ws.NewHub(presence, zlog)
	wsHandler := ws.NewHandler(hub, cfg.JWT.Secret, zlog)

	convSvc := service.NewConversationService(convRepo, msgRepo, taskRepo, hub, producer, zlog)
	msgSvc := service.NewMessageService(convRepo, msgRepo, hub, producer, zlog)

	limiter := api.NewRateLimiter(rdb, cfg.Redis.Prefix, cfg.RateLimit.Limit, cfg.RateLimitWindow)
	srv := api.NewServer(convSvc, msgSvc, api.Options{
		JWTSecret:   cfg.JWT.Secret,
		RateLimiter: limiter,
		Blobs:       blobs,
		WSHandler:   wsHandler,
	}, zlog)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(":"+cfg.Server.MetricsPort, mux); err != nil {
			zlog.Warnw("metrics listener", "error", err)
		}
	}()

	go func() {
		if err := srv.Listen(":" + cfg.Server.Port); err != nil {
			zlog.Fatalw("server listen", "error", err)
		}
	}()
	zlog.Infow("chat backend started", "port", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.App().ShutdownWithContext(shutdownCtx)
	zlog.Info("chat backend stopped")
}
