package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/templui/goalstake/internal/auth"
	"github.com/templui/goalstake/internal/config"
	"github.com/templui/goalstake/internal/db"
	"github.com/templui/goalstake/internal/ledger"
	"github.com/templui/goalstake/internal/lock"
	"github.com/templui/goalstake/internal/middleware"
	"github.com/templui/goalstake/internal/repository"
	"github.com/templui/goalstake/internal/scheduler"
	"github.com/templui/goalstake/internal/service"
	"github.com/templui/goalstake/internal/storage"
	"github.com/templui/goalstake/internal/validator"
)

type App struct {
	Cfg               *config.Config
	DB                *sqlx.DB
	Ledger            ledger.Gateway
	FileService       *service.FileService // nil when image proofs are disabled
	LifecycleService  *service.LifecycleService
	SettlementService *service.SettlementService
	Operators         *auth.Operators
	Scheduler         *scheduler.Scheduler
	RateLimiter       *middleware.RateLimiter
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(ctx, cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	a, err := wire(ctx, cfg, database)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, cfg *config.Config, database *sqlx.DB) (*App, error) {
	// Repositories
	goalRepository := repository.NewGoalRepository(database)
	proofRepository := repository.NewProofRepository(database)
	payoutRepository := repository.NewPayoutRepository(database)
	fileRepository := repository.NewFileRepository(database)

	// External systems
	gateway, err := ledger.NewGateway(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %v", err)
	}

	proofValidator, err := validator.NewValidator(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize validator: %v", err)
	}

	var fileService *service.FileService
	fileStorage, err := storage.New(ctx, cfg)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		slog.Info("proof image storage disabled, text proofs only")
	case err != nil:
		return nil, fmt.Errorf("failed to initialize storage: %v", err)
	default:
		fileService = service.NewFileService(fileRepository, fileStorage)
	}

	locker, err := lock.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize settlement lock: %v", err)
	}

	// Services
	lifecycleService := service.NewLifecycleService(
		goalRepository,
		proofRepository,
		gateway,
		proofValidator,
		fileService,
		service.LifecycleConfigFrom(cfg),
	)
	settlementService := service.NewSettlementService(goalRepository, payoutRepository, gateway, locker, cfg.DeadlineGracePeriod)

	jobs, err := scheduler.New(lifecycleService, settlementService, scheduler.ConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler: %v", err)
	}

	operators := auth.NewOperators(cfg.OperatorJWTSecret)
	if !operators.Enabled() {
		slog.Warn("OPERATOR_JWT_SECRET not set, operator endpoints are disabled")
	}

	return &App{
		Cfg:               cfg,
		DB:                database,
		Ledger:            gateway,
		FileService:       fileService,
		LifecycleService:  lifecycleService,
		SettlementService: settlementService,
		Operators:         operators,
		Scheduler:         jobs,
		RateLimiter:       middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
