package main

import (
	"fmt"

	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/urfave/cli/v2"
)

var fees = cli.Command{
	Name:   "fees",
	Usage:  "show the fee rate estimates of every tier",
	Action: feesAction,
}

func feesAction(c *cli.Context) error {
	svc, cleanup, err := getServices(true)
	if err != nil {
		return err
	}
	defer cleanup()

	estimates, err := svc.transaction.GetFeeEstimates(c.Context)
	if err != nil {
		return err
	}

	for _, tier := range feeestimator.Tiers() {
		fmt.Printf(
			"%-9s (%3d blocks): %s\n", tier, tier.Target(), estimates[tier],
		)
	}
	return nil
}
