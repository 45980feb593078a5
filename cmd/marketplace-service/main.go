package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bidhall-marketplace-service/internal/adapters/broadcaster"
	"bidhall-marketplace-service/internal/adapters/db"
	"bidhall-marketplace-service/internal/adapters/notifier"
	"bidhall-marketplace-service/internal/adapters/redis"
	"bidhall-marketplace-service/internal/adapters/scheduler"
	"bidhall-marketplace-service/internal/adapters/ws"
	"bidhall-marketplace-service/internal/app"
	"bidhall-marketplace-service/internal/config"
	"bidhall-marketplace-service/internal/domain/job"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting Bidhall Marketplace Service...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	dbConn, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	log.Info().Msg("Database connection established")

	// Create repositories
	repoFactory := db.NewRepositoryFactory(dbConn)
	auctionRepo := repoFactory.GetAuctionRepository()
	participantRepo := repoFactory.GetParticipantRepository()
	bidRepo := repoFactory.GetBidRepository()
	itemRepo := repoFactory.GetItemRepository()
	userRepo := repoFactory.GetUserRepository()
	walletRepo := repoFactory.GetWalletRepository()
	jobRepo := repoFactory.GetJobRepository()
	notificationRepo := repoFactory.GetNotificationRepository()

	log.Info().Msg("Database repositories initialized")

	// Create Redis client
	redisClient := redis.NewClient(cfg)
	if err := redis.PingRedis(redisClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Info().Msg("Redis connection established")

	// Create Redis broadcaster
	redisBroadcaster := broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
		RedisClient: redisClient,
		Logger:      log.Logger,
	})
	log.Info().Msg("Redis broadcaster initialized")

	// Create notifier
	notificationNotifier := notifier.NewNotifier(notifier.NotifierParams{
		NotificationRepo: notificationRepo,
		Broadcaster:      redisBroadcaster,
		Logger:           log.Logger,
	})

	// Create job scheduler
	jobScheduler := scheduler.NewJobScheduler(scheduler.JobSchedulerParams{
		JobRepository:       jobRepo,
		Logger:              log.Logger,
		Workers:             cfg.Scheduler.Workers,
		MaintenanceInterval: cfg.Scheduler.MaintenanceInterval,
	})

	// Create business services
	auctionService := app.NewAuctionService(app.AuctionServiceParams{
		AuctionRepo:     auctionRepo,
		ParticipantRepo: participantRepo,
		BidRepo:         bidRepo,
		ItemRepo:        itemRepo,
		UserRepo:        userRepo,
		WalletRepo:      walletRepo,
		Scheduler:       jobScheduler,
		Broadcaster:     redisBroadcaster,
		Notifier:        notificationNotifier,
		Logger:          log.Logger,
	})
	bidService := app.NewBidService(app.BidServiceParams{
		BidRepo:         bidRepo,
		ParticipantRepo: participantRepo,
		UserRepo:        userRepo,
		Scheduler:       jobScheduler,
		Broadcaster:     redisBroadcaster,
		Notifier:        notificationNotifier,
		Logger:          log.Logger,
	})
	walletService := app.NewWalletService(app.WalletServiceParams{
		WalletRepo: walletRepo,
		UserRepo:   userRepo,
		Logger:     log.Logger,
	})

	log.Info().Msg("Business services initialized")

	// Bind lifecycle job handlers and start the scheduler. Persisted jobs
	// that were pending across the restart are reloaded inside Start.
	jobScheduler.RegisterHandler(job.TypeStartAuction, func(ctx context.Context, j *job.Job) error {
		return auctionService.StartAuctionFromJob(ctx, j.ReferenceID)
	})
	jobScheduler.RegisterHandler(job.TypeEndAuction, func(ctx context.Context, j *job.Job) error {
		_, err := auctionService.EndAuctionFromJob(ctx, j.ReferenceID)
		return err
	})

	if err := jobScheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job scheduler")
	}
	log.Info().Msg("Job scheduler started")

	wsServer := ws.NewServer(ws.ServerParams{
		Config:         cfg,
		AuctionService: auctionService,
		BidService:     bidService,
		WalletService:  walletService,
		Broadcaster:    redisBroadcaster,
		Logger:         log.Logger,
	})

	log.Info().Msg("WebSocket server initialized")

	// Start WebSocket server
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting WebSocket server")
		if err := wsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start WebSocket server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop job scheduler
	jobScheduler.Stop()
	log.Info().Msg("Job scheduler stopped")

	// Stop WebSocket server
	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping WebSocket server")
	}

	// Close broadcaster and its Redis connection
	if err := redisBroadcaster.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing broadcaster")
	}

	log.Info().Msg("Graceful shutdown completed")
}

func initLogging(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Logging.Format == "json" {
		// JSON format (default)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Console format for development
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global logger
	zerolog.DefaultContextLogger = &log.Logger
}
