package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	pb "github.com/solargrade/solargrade-server/api/v1"
	"github.com/solargrade/solargrade-server/internal/config"
	handler "github.com/solargrade/solargrade-server/internal/grpc"
	"github.com/solargrade/solargrade-server/internal/httpapi"
	"github.com/solargrade/solargrade-server/internal/repository"
	"github.com/solargrade/solargrade-server/internal/scheduler"
	"github.com/solargrade/solargrade-server/internal/service"
	"github.com/solargrade/solargrade-server/pkg/cache"
	dbbuilder "github.com/solargrade/solargrade-server/pkg/database"
	grpcsrv "github.com/solargrade/solargrade-server/pkg/grpc/server"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	logger     *zap.Logger
	dbPool     *sql.DB
	cache      *cache.Cache
	grpcServer *grpcsrv.Server
	httpServer *httpapi.Server
	scheduler  *scheduler.Scheduler
}

// OpenStore connects to the configured database and applies the schema.
func OpenStore(ctx context.Context, cfg *config.Config) (*sql.DB, *repository.GradingRepository, error) {
	dbPool, err := dbbuilder.NewContext(ctx,
		dbbuilder.WithDriver(cfg.DBDriver),
		dbbuilder.WithDataSource(cfg.DBPath),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("database init failed: %w", err)
	}

	repo := repository.NewGradingRepository(dbPool, cfg.DBDriver,
		repository.WithSnapshotRetention(cfg.SnapshotRetention))
	if err := repo.Migrate(ctx); err != nil {
		dbPool.Close()
		return nil, nil, fmt.Errorf("database migrate failed: %w", err)
	}
	return dbPool, repo, nil
}

// NewScoringService applies the configured worker count and timeouts.
func NewScoringService(cfg *config.Config, repo service.GradingRepository, logger *zap.Logger) *service.ScoringService {
	return service.NewScoringService(repo, logger,
		service.WithWorkers(cfg.RefreshWorkers),
		service.WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout),
	)
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	dbPool, repo, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Database pool initialized", zap.String("driver", cfg.DBDriver))

	cacheClient, err := cache.New(ctx,
		cache.WithAddress(cfg.RedisAddr),
		cache.WithPassword(cfg.RedisPassword),
		cache.WithDB(cfg.RedisDB),
		cache.WithNamespace(cfg.RedisKeyPrefix),
		cache.WithTimeouts(5*time.Second, cfg.ReadTimeout),
	)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("cache init failed: %w", err)
	}
	logger.Info("Cache client initialized", zap.String("addr", cfg.RedisAddr))

	scoringService := NewScoringService(cfg, repo, logger)

	sched := scheduler.New(scoringService, logger,
		scheduler.WithInterval(cfg.RefreshInterval),
		scheduler.WithInvalidator(cacheClient, service.CachePrefixes...),
		scheduler.WithRunOnStart(true),
	)

	grpcHandlers := handler.NewGRPCHandlers(scoringService, sched, cacheClient, logger, cfg.CacheTTL)

	grpcServer, err := grpcsrv.New(
		grpcsrv.WithPort(cfg.GRPCPort),
		grpcsrv.WithLogger(logger),
		grpcsrv.WithLogging(true),
		grpcsrv.WithReflection(cfg.GRPCReflectionEnabled),
	)
	if err != nil {
		cacheClient.Close()
		dbPool.Close()
		return nil, fmt.Errorf("failed to create gRPC server: %w", err)
	}

	grpcServer.Register(pb.RankingsServiceName, func(s grpc.ServiceRegistrar) {
		pb.RegisterRankingsServer(s, grpcHandlers)
	})

	a := &App{
		logger:     logger,
		dbPool:     dbPool,
		cache:      cacheClient,
		grpcServer: grpcServer,
		scheduler:  sched,
	}

	if cfg.HTTPPort > 0 {
		mode := gin.DebugMode
		if cfg.IsProduction() {
			mode = gin.ReleaseMode
		}
		router := httpapi.NewRouter(mode, logger.Named("http"))
		controller := httpapi.NewRankingsController(scoringService, cacheClient, logger, cfg.CacheTTL)
		controller.AddHealthCheck("database", dbPool.PingContext)
		controller.AddHealthCheck("cache", cacheClient.Ping)
		controller.RegisterRoutes(router)

		httpServer, err := httpapi.NewServer(cfg.HTTPPort, router, logger)
		if err != nil {
			_ = grpcServer.Shutdown(context.Background())
			cacheClient.Close()
			dbPool.Close()
			return nil, err
		}
		a.httpServer = httpServer
	}

	return a, nil
}

// Run starts the application and blocks until a shutdown signal is received.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext serves until ctx is done or a server fails, then shuts every
// component down.
func (a *App) RunContext(ctx context.Context) error {
	a.logger.Info("application starting")

	a.grpcServer.Start()
	var httpErr <-chan error
	if a.httpServer != nil {
		a.httpServer.Start()
		httpErr = a.httpServer.Err()
	}
	a.scheduler.Start()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("application shutting down")
	case serveErr = <-a.grpcServer.Err():
		a.logger.Error("gRPC server exited, shutting down", zap.Error(serveErr))
	case serveErr = <-httpErr:
		a.logger.Error("HTTP server exited, shutting down", zap.Error(serveErr))
	}

	return errors.Join(serveErr, a.shutdown())
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error

	a.scheduler.Stop()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := a.grpcServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("grpc shutdown: %w", err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("cache shutdown error", zap.Error(err))
	}
	if err := a.dbPool.Close(); err != nil {
		a.logger.Error("database shutdown error", zap.Error(err))
	}

	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown completed with errors", zap.Error(err))
		return err
	}
	a.logger.Info("graceful shutdown completed successfully")
	return nil
}
