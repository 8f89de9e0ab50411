package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/teamdesk/user-service/internal/adapter/messaging/nats"
	"github.com/teamdesk/user-service/internal/adapter/storage/s3"
	"github.com/teamdesk/user-service/internal/config"
	"github.com/teamdesk/user-service/internal/handler"
	"github.com/teamdesk/user-service/internal/mailer"
	"github.com/teamdesk/user-service/internal/repository"
	"github.com/teamdesk/user-service/internal/router"
	"github.com/teamdesk/user-service/internal/token"
	"github.com/teamdesk/user-service/internal/usecase"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration (.env is optional, env vars win)
	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Connect to MongoDB
	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		if err = mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	db := mongoClient.Database(cfg.MongoDatabase)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// NATS is best-effort: lifecycle events are informational and the
	// service stays up without them.
	var events usecase.EventPublisher
	publisher, err := nats.NewPublisher(cfg.NATSUrl)
	if err != nil {
		logger.Warn("Failed to connect to NATS, lifecycle events disabled", zap.String("url", cfg.NATSUrl), zap.Error(err))
	} else {
		defer publisher.Close()
		events = publisher
	}

	// Avatar object storage
	storage, err := s3.NewS3Storage(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize avatar storage", zap.Error(err))
	}

	var mail usecase.Mailer = mailer.Noop{}
	if cfg.WelcomeEmailEnabled {
		mail = mailer.NewSMTPMailerService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, cfg.SMTPSenderName, logger)
	}

	userRepo := repository.NewUserRepository(db, logger)
	roleRepo := repository.NewRoleRepository(db, logger)
	roles := repository.NewCachedRoleLister(roleRepo, redisClient, cfg.RoleCacheTTL, logger)
	tokens := token.NewService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	userUsecase := usecase.NewUserUsecase(userRepo, roles, tokens, storage, events, mail, logger)
	userHandler := handler.NewUserHandler(userUsecase, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router.New(userHandler, tokens, logger),
	}

	go func() {
		logger.Info("Starting User Service", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down User Service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
