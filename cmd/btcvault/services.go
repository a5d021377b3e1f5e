package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/tdex-network/btcvault/internal/config"
	"github.com/tdex-network/btcvault/internal/core/application"
	"github.com/tdex-network/btcvault/internal/core/ports"
	dbbadger "github.com/tdex-network/btcvault/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/btcvault/pkg/explorer"
	"github.com/tdex-network/btcvault/pkg/explorer/esplora"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/stats"
)

const explorerTimeout = 15 * time.Second

type services struct {
	wallet      application.WalletService
	transaction application.TransactionService
	explorer    explorer.Service
}

// getServices wires the application services to the configured storage
// and, if withExplorer is set, to the esplora explorer. The returned
// cleanup closes the db and zeroes the unlocked secrets.
func getServices(withExplorer bool) (*services, func(), error) {
	if err := config.InitConfig(); err != nil {
		return nil, nil, err
	}
	net := config.GetNetwork()

	var (
		explorerSvc explorer.Service
		utxoFeed    ports.UtxoFeed
		feeFeed     ports.FeeFeed
	)
	if withExplorer {
		svc, err := esplora.NewService(
			config.GetString(config.ExplorerUrlKey), net,
			config.GetInt(config.ExplorerRequestsPerSecondKey), explorerTimeout,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to explorer: %w", err)
		}
		explorerSvc, utxoFeed, feeFeed = svc, svc, svc
	}

	dbLogger := log.WithField("component", "badger")
	repoManager, err := dbbadger.NewRepoManager(config.GetDbDir(), dbLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening db: %w", err)
	}

	estimator, err := feeestimator.NewEstimator(config.GetFeeEstimatorConfig())
	if err != nil {
		repoManager.Close()
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	var metrics *stats.Metrics
	statsFile := filepath.Join(
		config.GetDatadir(), config.MetricsLocation, "metrics.txt",
	)
	if config.GetBool(config.EnableMetricsKey) {
		metrics = stats.NewMetrics()
		interval := time.Duration(config.GetInt(config.StatsIntervalKey)) * time.Second
		stats.EnableMemoryStatistics(ctx, interval)
	}

	keyring := application.NewKeyring()
	svc := &services{
		wallet: application.NewWalletService(
			repoManager, keyring, utxoFeed, net, metrics,
		),
		transaction: application.NewTransactionService(
			repoManager, keyring, feeFeed, estimator,
			application.TransactionServiceOpts{
				DustThreshold: uint64(config.GetInt(config.DustThresholdKey)),
				Policy:        config.GetCoinSelectionPolicy(),
			},
			metrics,
		),
		explorer: explorerSvc,
	}

	cleanup := func() {
		keyring.Close()
		repoManager.Close()
		cancel()
		if metrics != nil {
			if err := stats.DumpMetrics(metrics.Registry, statsFile); err != nil {
				log.WithError(err).Warn("failed to dump metrics")
			}
		}
	}
	return svc, cleanup, nil
}

// unlockWallet unlocks the wallet of the --wallet flag with the --password
// one.
func unlockWallet(c *cli.Context, svc *services) error {
	password := c.String(passwordFlag.Name)
	if password == "" {
		return fmt.Errorf("missing --%s", passwordFlag.Name)
	}
	return svc.wallet.UnlockWallet(
		c.Context, c.String(walletFlag.Name), password,
	)
}
