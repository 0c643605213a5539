package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/nick-gallo-ethico/approvalflow/internal/application/dispatcher"
	"github.com/nick-gallo-ethico/approvalflow/internal/application/engine"
	"github.com/nick-gallo-ethico/approvalflow/internal/application/port"
	"github.com/nick-gallo-ethico/approvalflow/internal/application/service"
	"github.com/nick-gallo-ethico/approvalflow/internal/config"
	"github.com/nick-gallo-ethico/approvalflow/internal/infrastructure/identity"
	"github.com/nick-gallo-ethico/approvalflow/internal/infrastructure/notification"
	"github.com/nick-gallo-ethico/approvalflow/internal/infrastructure/persistence/repository"
	"github.com/nick-gallo-ethico/approvalflow/internal/infrastructure/persistence/sqlite"
	httpserver "github.com/nick-gallo-ethico/approvalflow/internal/interfaces/http"
	"github.com/nick-gallo-ethico/approvalflow/internal/report"
	"github.com/nick-gallo-ethico/approvalflow/pkg/database"
	"github.com/nick-gallo-ethico/approvalflow/pkg/utils"
)

func main() {
	// .env is optional; config falls back to defaults and real env vars.
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting approval workflow service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	sqlDB, err := database.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer sqlDB.Close()

	migrator := database.NewMigrator(sqlDB, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	db := sqlite.NewDB(sqlDB, logger)

	definitionRepo := repository.NewDefinitionRepository(db, logger)
	instanceRepo := repository.NewInstanceRepository(db, logger)
	stepRepo := repository.NewStepRepository(db, logger)
	decisionRepo := repository.NewDecisionRepository(db, logger)
	transitionRepo := repository.NewTransitionRepository(db, logger)

	resolver := identity.NewStaticResolver(seedIdentities(cfg))

	eventDispatcher := dispatcher.New(logger)
	defer eventDispatcher.Close()

	logChannel := notification.NewLogChannel(logger)
	logChannel.Register(eventDispatcher)

	notifier := notification.NewDispatchNotifier(eventDispatcher)

	eng := engine.New(
		definitionRepo,
		instanceRepo,
		stepRepo,
		decisionRepo,
		transitionRepo,
		db,
		resolver,
		logger,
		engine.WithNotifier(notifier),
	)

	definitionService := service.NewDefinitionService(definitionRepo, db, logger)
	exporter := report.NewHistoryExporter(logger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, eng, definitionService, exporter, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited")
}

func seedIdentities(cfg *config.Config) []port.Identity {
	seed := make([]port.Identity, 0, len(cfg.Identity.Actors))
	for _, actor := range cfg.Identity.Actors {
		seed = append(seed, port.Identity{
			ActorID:        actor.ActorID,
			OrganizationID: actor.OrganizationID,
			Roles:          actor.Roles,
		})
	}
	return seed
}
