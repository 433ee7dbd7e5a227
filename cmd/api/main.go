package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"gorm.io/gorm"

	"portfolio/internal/api"
	"portfolio/internal/auth"
	"portfolio/internal/captcha"
	"portfolio/internal/config"
	"portfolio/internal/contact"
	"portfolio/internal/database"
	"portfolio/internal/mailer"
	"portfolio/internal/ratelimit"
	"portfolio/internal/storage"
	"portfolio/internal/telemetry"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, os.Stdout)
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("ping redis: %v", err)
		}
		logger.Info("redis ready", slog.String("addr", cfg.Redis.Addr()))
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	if err := storageClient.Ping(ctx); err != nil {
		logger.Warn("storage bucket not reachable, uploads will fail", slog.Any("error", err))
	} else {
		logger.Info("storage ready", slog.String("bucket", cfg.MinIO.Bucket))
	}

	contactService, queue := newContactService(cfg, db, redisClient, logger)
	if queue != nil {
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Error("close task queue client failed", slog.Any("error", err))
			}
		}()
	}

	privateKey, publicKey, err := cfg.Auth.ReadAuthKeys()
	if err != nil {
		log.Fatalf("read auth keys: %v", err)
	}
	authService, err := auth.NewAuthService(privateKey, publicKey, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	var sessionKV auth.KV = auth.NewMemoryKV()
	if redisClient != nil {
		sessionKV = auth.NewRedisKV(redisClient)
	}
	sessions := auth.NewSessions(sessionKV, auth.SessionPolicy{
		LoginRatePerHour: cfg.Auth.LoginRateLimitPerHour,
		LockThreshold:    cfg.Auth.LoginLockThreshold,
		LockTTL:          cfg.Auth.LoginLockTTL,
	})

	oauth, err := auth.NewOAuth(ctx, cfg.OAuth)
	if err != nil {
		log.Fatalf("init oauth: %v", err)
	}

	deps := api.Deps{
		DB:          db,
		Logger:      logger,
		Storage:     storageClient,
		MaxUpload:   cfg.Upload.MaxBytes,
		Contact:     contactService,
		AuthService: authService,
		Users:       auth.NewUsers(db),
		Sessions:    sessions,
		OAuth:       oauth,
		AuthOptions: api.AuthOptions{
			AdminEmails:     cfg.OAuth.AdminEmails,
			SuccessRedirect: cfg.OAuth.SuccessRedirect,
			CookieDomain:    cfg.API.CookieDomain,
		},
		Origins: cfg.API.AllowedOrigins,
	}
	if cfg.Upload.ClamdAddr != "" {
		deps.Scanner = api.NewClamdScanner(cfg.Upload.ClamdAddr)
	}
	if redisClient != nil {
		deps.PubSub = redisClient
	}

	router, err := api.NewRouter(logger, cfg.API.InternalSecret, cfg.API.TrustedProxies)
	if err != nil {
		log.Fatalf("init router: %v", err)
	}
	api.RegisterRoutes(router, deps)

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.API.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           telemetry.Handler(handler, "portfolio-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("flush traces failed", slog.Any("error", err))
	}
}

// newContactService 按配置组装限流、人机验证与通知方式。
// Redis 可用时走任务队列与实时推送，否则在进程内直接发信。
// 返回的任务队列客户端可能为 nil，非 nil 时由调用方负责关闭。
func newContactService(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, logger *slog.Logger) (*contact.Service, *asynq.Client) {
	policy := ratelimit.Policy{Window: cfg.RateLimit.Window, Max: cfg.RateLimit.Max}
	var limiter ratelimit.Limiter = ratelimit.NewMemory(policy)
	if cfg.RateLimit.Backend == "redis" && redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient, policy, "rate:contact:")
	}

	opts := []contact.Option{contact.WithLogger(logger)}
	if verifier := captcha.NewRecaptcha(cfg.Captcha.Secret, cfg.Captcha.VerifyURL, cfg.Captcha.MinScore); verifier != nil {
		opts = append(opts, contact.WithVerifier(verifier))
	}

	var queue *asynq.Client
	switch {
	case redisClient != nil:
		queue = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
		opts = append(opts,
			contact.WithNotifiers(contact.NewQueueNotifier(queue), contact.NewEventPublisher(redisClient)),
		)
	case cfg.Mail.Enabled():
		sender := mailer.NewResend(cfg.Mail.ResendAPIKey, cfg.Mail.From)
		opts = append(opts, contact.WithNotifiers(contact.NewMailNotifier(sender, cfg.Mail.To, logger)))
	default:
		logger.Warn("contact notifications disabled: neither redis nor mail is configured")
	}

	return contact.NewService(db, limiter, opts...), queue
}
