// Command server runs the SolarGrade gRPC and HTTP APIs together with the
// periodic ranking refresher.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/solargrade/solargrade-server/internal/app"
	"github.com/solargrade/solargrade-server/internal/config"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file; environment variables override it")
	envFile := flag.String("env-file", ".env", "dotenv file read before the config")
	flag.Parse()

	if err := run(*configFile, *envFile); err != nil {
		fmt.Fprintln(os.Stderr, "solargrade:", err)
		os.Exit(1)
	}
}

func run(configFile, envFile string) error {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting solargrade",
		zap.String("env", cfg.AppEnv),
		zap.String("db_driver", cfg.DBDriver),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
	)

	application, err := app.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("application init failed", zap.Error(err))
		return err
	}
	if err := application.Run(); err != nil {
		logger.Error("application exited with error", zap.Error(err))
		return err
	}
	return nil
}
