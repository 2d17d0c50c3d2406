package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/amillerrr/lms-pipeline/internal/api"
	"github.com/amillerrr/lms-pipeline/internal/auth"
	"github.com/amillerrr/lms-pipeline/internal/config"
	"github.com/amillerrr/lms-pipeline/internal/health"
	"github.com/amillerrr/lms-pipeline/internal/ingest"
	"github.com/amillerrr/lms-pipeline/internal/observability"
	"github.com/amillerrr/lms-pipeline/internal/progress"
	"github.com/amillerrr/lms-pipeline/internal/provider"
	"github.com/amillerrr/lms-pipeline/internal/reconcile"
	"github.com/amillerrr/lms-pipeline/internal/storage"
)

const (
	ShutdownTimeout       = 30 * time.Second
	TracerShutdownTimeout = 5 * time.Second
	AWSConfigTimeout      = 10 * time.Second
)

func main() {
	// Initialize logger
	log := observability.NewLogger()
	slog.SetDefault(log)

	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize tracer
	shutdownTracer, err := observability.InitTracer(context.Background(), "lms-api", cfg)
	if err != nil {
		log.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), TracerShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error("Failed to shutdown tracer", "error", err)
		}
	}()

	// Initialize AWS clients
	ctx, cancel := context.WithTimeout(context.Background(), AWSConfigTimeout)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	assetRepo, err := storage.NewAssetRepository(dynamoClient, cfg.AWS.DynamoDBTable)
	if err != nil {
		log.Error("Failed to initialize asset repository", "error", err)
		os.Exit(1)
	}
	progressRepo, err := storage.NewProgressRepository(dynamoClient, cfg.AWS.DynamoDBTable)
	if err != nil {
		log.Error("Failed to initialize progress repository", "error", err)
		os.Exit(1)
	}
	catalogRepo, err := storage.NewCatalogRepository(dynamoClient, cfg.AWS.DynamoDBTable)
	if err != nil {
		log.Error("Failed to initialize catalog repository", "error", err)
		os.Exit(1)
	}
	log.Info("DynamoDB repositories initialized", "table", cfg.AWS.DynamoDBTable)

	// Initialize provider client and URL signer
	providerClient, err := provider.NewClient(cfg)
	if err != nil {
		log.Error("Failed to initialize provider client", "error", err)
		os.Exit(1)
	}
	signer := provider.NewSigner(cfg)

	// Optional stalled-asset events
	var events reconcile.Events
	var sqsClient *sqs.Client
	if cfg.StalledEventsEnabled() {
		sqsClient = sqs.NewFromConfig(awsCfg)
		events = storage.NewStalledEventPublisher(sqsClient, cfg.AWS.StalledQueueURL)
		log.Info("Stalled-asset events enabled", "queue", cfg.AWS.StalledQueueURL)
	}

	// Reconciliation loop
	reconciler := reconcile.New(&reconcile.Config{
		Client:       providerClient,
		Assets:       assetRepo,
		Events:       events,
		Signer:       signer,
		PollInterval: cfg.Reconcile.PollInterval,
		MaxAttempts:  cfg.Reconcile.MaxAttempts,
		Logger:       log,
	})

	// Optional raw source archive
	var (
		archiver        ingest.Archiver
		sourcePresigner api.SourcePresigner
	)
	if cfg.ArchiveEnabled() {
		archive := storage.NewSourceArchive(s3.NewFromConfig(awsCfg), cfg.AWS.ArchiveBucket)
		archiver = archive
		sourcePresigner = archive
		log.Info("Source archiving enabled", "bucket", cfg.AWS.ArchiveBucket)
	}

	// Ingest pipeline
	pipeline := ingest.New(&ingest.Config{
		Provider: providerClient,
		Assets:   assetRepo,
		Catalog:  catalogRepo,
		Watcher:  reconciler,
		Archive:  archiver,
		Signer:   signer,
		Stager:   ingest.NewStager(cfg.Ingest.TempDir, cfg.Ingest.MaxUploadBytes, log),
		Logger:   log,
	})

	// Progress tracker
	tracker := progress.New(&progress.Config{
		Store:       progressRepo,
		Catalog:     catalogRepo,
		Enrollments: catalogRepo,
		Logger:      log,
	})

	// Initialize JWT service
	jwtSecret, err := cfg.GetJWTSecret()
	if err != nil {
		log.Error("Failed to get JWT secret", "error", err)
		os.Exit(1)
	}
	jwtService, err := auth.NewJWTService(string(jwtSecret))
	if err != nil {
		log.Error("Failed to create JWT service", "error", err)
		os.Exit(1)
	}

	// Initialize rate limiter
	rateLimiter := auth.NewRateLimiter(auth.DefaultRateLimiterConfig())

	// Initialize health checker
	healthConfig := health.DefaultConfig("lms-api", log)
	healthConfig.DynamoDBClient = dynamoClient
	healthConfig.TableName = cfg.AWS.DynamoDBTable
	healthConfig.SQSClient = sqsClient
	healthConfig.SQSQueueURL = cfg.AWS.StalledQueueURL
	healthConfig.Provider = providerClient
	healthChecker := health.NewChecker(healthConfig)

	// Create and start server
	server, err := api.NewServer(&api.ServerConfig{
		Config:        cfg,
		Logger:        log,
		Ingest:        pipeline,
		Progress:      tracker,
		Assets:        assetRepo,
		Creator:       providerClient,
		Signer:        signer,
		Archive:       sourcePresigner,
		JWTService:    jwtService,
		RateLimiter:   rateLimiter,
		HealthChecker: healthChecker,
	})
	if err != nil {
		log.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := reconciler.Drain(ctx); err != nil {
		log.Error("Reconciler drain timed out", "error", err)
	}

	log.Info("Server shutdown complete")
}
