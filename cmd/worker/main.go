package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"portfolio/internal/config"
	"portfolio/internal/contact"
	"portfolio/internal/database"
	"portfolio/internal/mailer"
	"portfolio/internal/metrics"
	"portfolio/internal/tasks"
	"portfolio/internal/worker"
)

const workerMetricsAddr = ":9091"

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if !cfg.Redis.Enabled {
		log.Fatal("worker requires REDIS_ENABLED=true")
	}
	if !cfg.Mail.Enabled() {
		log.Fatal("worker requires RESEND_API_KEY and CONTACT_EMAIL")
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready for worker")

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 5,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return time.Duration(n*n+1) * 10 * time.Second
		},
	})

	notifyHandler := worker.NewContactNotifyHandler(
		db,
		mailer.NewResend(cfg.Mail.ResendAPIKey, cfg.Mail.From),
		cfg.Mail.To,
		contact.NewEventPublisher(redisClient),
		logger,
	)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeContactNotify, notifyHandler)

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer := &http.Server{Addr: workerMetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		if err := metricsServer.ListenAndServe(); err != nil {
			logger.Error("worker metrics server stopped", slog.Any("error", err))
		}
	}()

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
