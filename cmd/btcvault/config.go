package main

import (
	"fmt"

	"github.com/tdex-network/btcvault/internal/config"
	"github.com/urfave/cli/v2"
)

var configKeys = []string{
	config.DatadirKey,
	config.LogLevelKey,
	config.NetworkKey,
	config.DBTypeKey,
	config.ExplorerUrlKey,
	config.ExplorerRequestsPerSecondKey,
	config.MinRelayFeeKey,
	config.DustThresholdKey,
	config.FeeStrategyKey,
	config.CustomFeeRateKey,
	config.CoinSelectionKey,
	config.EnableMetricsKey,
	config.StatsIntervalKey,
}

var configCmd = cli.Command{
	Name:   "config",
	Usage:  "Print the configuration in use, set with BTCVAULT_<KEY> env vars",
	Action: configAction,
}

func configAction(ctx *cli.Context) error {
	if err := config.InitConfig(); err != nil {
		return err
	}

	for _, key := range configKeys {
		fmt.Println(key + ": " + config.GetString(key))
	}

	return nil
}
