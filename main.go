// Copyright 2025 Worldtree Labs
//
// Coordinator service entrypoint. Wires the prover registry, the identity
// manager, the database and the root-finalization task together and runs
// them until shutdown.

package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/worldtree/identity-coordinator/pkg/config"
	"github.com/worldtree/identity-coordinator/pkg/database"
	"github.com/worldtree/identity-coordinator/pkg/ethereum"
	"github.com/worldtree/identity-coordinator/pkg/finalizer"
	"github.com/worldtree/identity-coordinator/pkg/identity"
	"github.com/worldtree/identity-coordinator/pkg/logging"
	"github.com/worldtree/identity-coordinator/pkg/prover"
	"github.com/worldtree/identity-coordinator/pkg/server"
	"github.com/worldtree/identity-coordinator/pkg/tree"
)

func main() {
	app := &cli.App{
		Name:  "identity-coordinator",
		Usage: "off-chain coordinator for the batch identity manager contract",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json-logging",
				Usage: "emit JSON logs instead of console output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the coordinator service",
				Action: runService,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: runMigrations,
			},
		},
		// Running with no command starts the service.
		Action: runService,
	}

	if err := app.Run(os.Args); err != nil {
		logging.Logger().Fatal().Err(err).Msg("coordinator terminated")
	}
}

func loadConfig(cliCtx *cli.Context) (*config.Config, error) {
	// A missing .env file is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cliCtx.Bool("json-logging") {
		logging.SetJSONOutput()
	}
	logging.SetLevel(cfg.LogLevel)

	return cfg, nil
}

func connectDatabase(cfg *config.Config) (*database.Client, error) {
	return database.NewClient(database.Options{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DatabaseMaxConns,
		MinConns:    cfg.DatabaseMinConns,
		MaxIdleTime: time.Duration(cfg.DatabaseMaxIdleTime) * time.Second,
		MaxLifetime: time.Duration(cfg.DatabaseMaxLifetime) * time.Second,
	})
}

func runMigrations(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return err
	}
	db, err := connectDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.MigrateUp(cliCtx.Context)
}

func runService(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	defer cancel()

	db, err := connectDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.MigrateUp(ctx); err != nil {
		return err
	}
	rootRepository := database.NewRootRepository(db)

	ethClient, err := ethereum.NewClient(cfg.EthereumURL, cfg.EthChainID, cfg.EthPrivateKey)
	if err != nil {
		return err
	}
	defer ethClient.Close()

	batchProver, err := prover.NewProver(prover.Options{
		MtbProverURL:         cfg.MtbProverURL,
		MtbProverTimeoutSecs: cfg.MtbProverTimeoutSecs,
		BatchSize:            cfg.BatchSize,
	})
	if err != nil {
		return err
	}
	proverMap, err := prover.NewMap(batchProver)
	if err != nil {
		return err
	}

	if !common.IsHexAddress(cfg.IdentityManagerAddress) {
		return fmt.Errorf("invalid identity manager address: %s", cfg.IdentityManagerAddress)
	}
	initialLeafValue, err := cfg.ParseInitialLeafValue()
	if err != nil {
		return err
	}

	// Refuses to come up when the signer does not own the contract.
	manager, err := identity.New(ctx, identity.Options{
		Address:          common.HexToAddress(cfg.IdentityManagerAddress),
		TreeDepth:        cfg.TreeDepth,
		InitialLeafValue: initialLeafValue,
	}, ethClient, proverMap, rootRepository)
	if err != nil {
		return err
	}

	// Settle any transactions left over from a previous run before starting
	// new work.
	if err := manager.AwaitCleanSlate(ctx); err != nil {
		return err
	}

	initialRoot, err := manager.LatestRoot(ctx)
	if err != nil {
		return err
	}
	finalizedTree := tree.NewVersion(initialRoot)

	minedRoots := make(chan *big.Int)
	watcher := finalizer.NewRootWatcher(manager, cfg.RootPollInterval(), initialRoot, minedRoots)
	finalizeTask := finalizer.New(rootRepository, manager, finalizedTree, finalizer.NewMinedRoots(minedRoots))

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		watcher.Run(ctx)
	}()

	finalizerErr := make(chan error, 1)
	go func() {
		finalizerErr <- finalizeTask.Run(ctx)
	}()

	jobs := server.Run(&server.Config{
		MetricsAddress: cfg.MetricsAddr,
		HealthAddress:  cfg.HealthAddr,
	}, map[string]server.Pinger{
		"database": db,
		"ethereum": server.PingerFunc(ethClient.Health),
	})

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-signals:
		logging.Logger().Info().Str("signal", sig.String()).Msg("shutting down")
		// Cancelling stops the watcher, which closes the mined-roots
		// channel; the finalization task shares the context, so it exits
		// either through the closed channel or with context.Canceled.
		cancel()
		<-watcherDone
		if err := <-finalizerErr; err != nil && err != context.Canceled {
			runErr = err
		}
	case err := <-finalizerErr:
		if err != nil && err != context.Canceled {
			logging.Logger().Error().Err(err).Msg("finalization task failed")
			runErr = err
		}
		cancel()
		<-watcherDone
	}

	jobs.RequestStop()
	jobs.AwaitStop()

	return runErr
}
