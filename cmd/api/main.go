package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/medvox/medvox-api/internal/cache"
	"github.com/medvox/medvox-api/internal/config"
	"github.com/medvox/medvox-api/internal/database"
	"github.com/medvox/medvox-api/internal/handler"
	"github.com/medvox/medvox-api/internal/middleware"
	"github.com/medvox/medvox-api/internal/models"
	"github.com/medvox/medvox-api/internal/repository"
	"github.com/medvox/medvox-api/internal/router"
	"github.com/medvox/medvox-api/internal/service"
	"github.com/medvox/medvox-api/pkg/ai"
	cloud "github.com/medvox/medvox-api/pkg/cloudinary"
	"github.com/medvox/medvox-api/pkg/speech"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Direction{}, &models.Exam{}, &models.Question{},
		&models.OralExamSession{}, &models.OralExamAnswer{},
		&models.DirectionAnswer{}, &models.QuestionReferenceAnswer{},
		&models.Subscription{}, &models.AIUsageLog{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	store := cache.NewStore(redisClient, logger)

	aiClient, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create openai client: %v", err)
	}

	transcriber, err := buildTranscriber(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create transcriber: %v", err)
	}

	var archiver service.AudioArchiver
	if cfg.CloudinaryCloudName != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		archiver = uploader
	}

	var events *service.SessionEventPublisher
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer conn.Drain()
		events = service.NewSessionEventPublisher(conn, cfg.NATSSubject, logger)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	questionRepo := repository.NewQuestionRepository(db)
	sessionRepo := repository.NewOralSessionRepository(db)
	referenceRepo := repository.NewReferenceAnswerRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	usageRepo := repository.NewUsageLogRepository(db)

	resolver := service.NewReferenceAnswerService(
		questionRepo, referenceRepo, store, aiClient,
		cfg.GenerationLockTTL, cfg.ReferenceCacheTTL, logger,
	)

	sessionService := service.NewOralSessionService(service.OralSessionDeps{
		Sessions:      sessionRepo,
		Questions:     questionRepo,
		Subscriptions: subscriptionRepo,
		Usage:         usageRepo,
		Store:         store,
		Resolver:      resolver,
		Transcriber:   transcriber,
		Evaluator:     aiClient,
		Archiver:      archiver,
		Events:        events,
		SessionTTL:    cfg.SessionTTL,
	}, logger)

	oralHandler := handler.NewOralSessionHandler(sessionService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    20 << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		OralSessionHandler: oralHandler,
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildTranscriber(cfg config.Config, logger zerolog.Logger) (speech.Transcriber, error) {
	if cfg.SpeechProvider == "google" {
		return speech.NewGoogleTranscriber(context.Background(), logger)
	}

	return speech.NewWhisperTranscriber(speech.WhisperConfig{
		APIKey: cfg.OpenAIAPIKey,
		Logger: logger,
	})
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
