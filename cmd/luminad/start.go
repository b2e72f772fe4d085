package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/luminacoin/lumina-core/config"
	"github.com/luminacoin/lumina-core/log"
	"github.com/luminacoin/lumina-core/metrics"
	"github.com/luminacoin/lumina-core/service"
	"github.com/luminacoin/lumina-core/store"
)

const (
	homeFlag  = "home"
	forceFlag = "force"

	dbBucketName = "staking"
)

var startCommand = cli.Command{
	Name:  "start",
	Usage: "Start the staking core daemon.",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  homeFlag,
			Usage: "Path to the daemon home directory",
			Value: config.DefaultHomeDir,
		},
	},
	Action: start,
}

func start(ctx *cli.Context) error {
	homePath := ctx.String(homeFlag)

	cfg, err := config.LoadConfig(homePath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := log.NewRootLoggerWithFile(config.LogFile(homePath), cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize the logger: %w", err)
	}

	db, err := store.NewBboltStore(cfg.DatabaseConfig.DBFile(), dbBucketName)
	if err != nil {
		return fmt.Errorf("failed to open the database: %w", err)
	}
	defer db.Close()

	app, err := service.NewApp(cfg, db, nil, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to build the staking core: %w", err)
	}

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start the staking core: %w", err)
	}

	metricsAddr, err := cfg.Metrics.Address()
	if err != nil {
		return err
	}
	metricsServer := metrics.Start(metricsAddr, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Stop(shutdownCtx)

	return app.Stop()
}
