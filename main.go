package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"lifesync/cardcatalog"
	"lifesync/config"
	"lifesync/handlers"
	"lifesync/middleware"
	"lifesync/services"
	"lifesync/store"
	"lifesync/utils"
	"lifesync/workers"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.EnvFileNotFound {
		logger.Warn().Msg("no .env file found, reading environment variables directly")
	}
	if err := cfg.RequireServer(); err != nil {
		logger.Fatal().Err(err).Msg("server configuration incomplete")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	clock := clockwork.NewRealClock()
	backend := store.NewGormStore(db, clock, cfg.StorePoll, logger)
	if err := backend.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	cardCache, err := cardcatalog.NewGormCache(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate card cache")
	}
	catalog := cardcatalog.NewClient(cfg.CardCatalogURL, cardCache, logger)
	catalog.HTTP = utils.HTTPClient

	var files services.FileStore
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Files(ctx, cfg.R2, cfg.CDNBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		files = r2
	} else {
		local, err := utils.NewLocalFiles(cfg.UploadDir, cfg.ServerURL+"/uploads")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare upload dir")
		}
		logger.Warn().Str("dir", cfg.UploadDir).Msg("R2 not configured, storing icons locally")
		files = local
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             4 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, logger))

	var streamAuth fiber.Handler
	if cfg.AuthServiceURL != "" {
		authClient := services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceToken, utils.HTTPClient, logger)
		streamAuth = middleware.StreamAuthMiddleware(authClient, logger)
	}

	handlers.SetupSessionRoutes(app, services.NewSessionService(backend, clock, logger), streamAuth, logger)
	handlers.SetupCardRoutes(app, services.NewCardService(catalog, logger))
	handlers.SetupIconRoutes(app, services.NewIconService(files, logger), cfg.UploadDir)

	sweeper := workers.NewSessionSweeper(backend, cfg.SessionTTL, cfg.SweepInterval, clock, logger)
	sweeperDone := sweeper.Start(ctx)

	sched, err := services.StartMaintenanceScheduler(cardCache, cfg.CardCacheTTL, clock, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start maintenance scheduler")
	}

	go func() {
		if err := app.Listen(cfg.Addr()); err != nil {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	logger.Info().
		Str("addr", cfg.Addr()).
		Strs("origins", cfg.AllowedOrigins).
		Bool("r2", cfg.R2.Enabled()).
		Bool("stream_auth", streamAuth != nil).
		Msg("session server running")

	<-ctx.Done()
	logger.Info().Msg("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn().Err(err).Msg("server shutdown")
	}
	if err := sched.Shutdown(); err != nil {
		logger.Warn().Err(err).Msg("scheduler shutdown")
	}
	<-sweeperDone
}
