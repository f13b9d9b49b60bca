package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/solargrade/solargrade-server/internal/app"
	"github.com/solargrade/solargrade-server/internal/config"
	"github.com/solargrade/solargrade-server/internal/repository"
	"github.com/solargrade/solargrade-server/internal/service"
	"github.com/solargrade/solargrade-server/pkg/cache"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const cacheDialTimeout = 3 * time.Second

// runtime is what every subcommand shares once the root has loaded config.
type runtime struct {
	configFile string
	envFile    string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "solargradectl",
		Short:         "SolarGrade maintenance tool",
		Long:          "solargradectl migrates the schema, seeds fixtures, recomputes grades and prints the published leaderboard.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&rt.configFile, "config", "c", "", "YAML config file (env vars still take precedence)")
	root.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "dotenv file loaded before config")

	root.AddCommand(
		newMigrateCmd(rt),
		newRefreshCmd(rt),
		newRankCmd(rt),
		newSeedCmd(rt),
	)
	return root
}

func (rt *runtime) load() error {
	if rt.envFile != "" {
		_ = godotenv.Load(rt.envFile)
	}

	cfg, err := config.Load(rt.configFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}
	rt.cfg = cfg
	rt.logger = logger.Named("solargradectl")
	return nil
}

func (rt *runtime) openService(ctx context.Context) (*sql.DB, *repository.GradingRepository, *service.ScoringService, error) {
	db, repo, err := app.OpenStore(ctx, rt.cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return db, repo, app.NewScoringService(rt.cfg, repo, rt.logger), nil
}

// invalidateCache drops cached read models so servers pick up a new
// snapshot. An unreachable cache is reported but not fatal.
func (rt *runtime) invalidateCache(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, cacheDialTimeout)
	defer cancel()

	c, err := cache.New(dialCtx,
		cache.WithAddress(rt.cfg.RedisAddr),
		cache.WithPassword(rt.cfg.RedisPassword),
		cache.WithDB(rt.cfg.RedisDB),
		cache.WithNamespace(rt.cfg.RedisKeyPrefix),
	)
	if err != nil {
		rt.logger.Warn("cache unavailable, skipping invalidation", zap.Error(err))
		return
	}
	defer c.Close()

	for _, prefix := range service.CachePrefixes {
		n, err := c.DeletePrefix(ctx, prefix)
		if err != nil {
			rt.logger.Warn("cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
			continue
		}
		rt.logger.Info("cache invalidated", zap.String("prefix", prefix), zap.Int("keys", n))
	}
}
