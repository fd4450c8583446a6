package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"deskos-auth/internal/config"
	"deskos-auth/internal/db"
	"deskos-auth/internal/email"
	apihttp "deskos-auth/internal/http"
	"deskos-auth/internal/repository"
	"deskos-auth/internal/service"
	"deskos-auth/internal/sms"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	// Sin secreto de firma el servicio no puede emitir sesiones: error fatal.
	jwtSvc, err := service.NewJWTService(cfg.JWTSecret, time.Hour)
	if err != nil {
		logger.Fatal("jwt init", zap.Error(err))
	}

	emailSender := email.Sender(email.NewDisabledSender("email sender not configured"))
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	smsSender := sms.Sender(sms.NewDisabledSender("sms sender not configured"))
	if cfg.TwilioAccountSID != "" {
		sender, err := sms.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		if err != nil {
			logger.Warn("twilio sender init failed", zap.Error(err))
		} else {
			smsSender = sender
		}
	}

	var (
		feed        service.ActivityFeed
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
			redisClient = nil
		} else {
			feed = service.NewRedisActivityFeed(redisClient, 200)
		}
		cancel()
	}
	if feed == nil {
		// Ambos servicios deben compartir el mismo feed.
		feed = service.NewMemoryActivityFeed(200)
	}

	accountRepo := repository.NewPgAccountRepository(pool)
	accountSvc := service.NewAccountService(logger, accountRepo, emailSender, smsSender, feed, cfg.ClientURL)
	adminSvc := service.NewAdminService(logger, accountRepo, feed, redisClient)

	authHandler := apihttp.NewAuthHandler(logger, accountSvc, jwtSvc)
	profileHandler := apihttp.NewProfileHandler(logger, accountSvc)
	adminHandler := apihttp.NewAdminHandler(logger, adminSvc)
	router := apihttp.NewRouter(logger, authHandler, profileHandler, adminHandler, jwtSvc, func(ctx context.Context) error {
		return pingWithTimeout(ctx, pool)
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func pingWithTimeout(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Ping(ctx, pool)
}
