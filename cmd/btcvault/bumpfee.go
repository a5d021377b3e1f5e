package main

import (
	"fmt"

	"github.com/tdex-network/btcvault/internal/core/application"
	"github.com/urfave/cli/v2"
)

var bumpfee = cli.Command{
	Name:  "bumpfee",
	Usage: "replace a finalized transaction with one paying a higher fee",
	Flags: []cli.Flag{
		&walletFlag,
		&passwordFlag,
		&cli.StringFlag{
			Name:     "draft",
			Usage:    "the id of the draft to replace",
			Required: true,
		},
		&feeRateFlag,
		&tierFlag,
		&changeTypeFlag,
		&broadcastFlag,
	},
	Action: bumpFeeAction,
}

func bumpFeeAction(c *cli.Context) error {
	tier, changeType, err := parseFeeAndChangeFlags(c)
	if err != nil {
		return err
	}

	broadcast := c.Bool(broadcastFlag.Name)
	svc, cleanup, err := getServices(broadcast || c.Float64(feeRateFlag.Name) <= 0)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := unlockWallet(c, svc); err != nil {
		return err
	}

	walletName := c.String(walletFlag.Name)
	replacement, err := svc.transaction.BumpFee(c.Context, application.BumpFeeRequest{
		WalletID:   walletName,
		DraftID:    c.String("draft"),
		FeeRate:    c.Float64(feeRateFlag.Name),
		Tier:       tier,
		ChangeType: changeType,
	})
	if err != nil {
		return err
	}

	signed, err := svc.transaction.SignDraft(c.Context, walletName, replacement.ID)
	if err != nil {
		return fmt.Errorf(
			"replacement %s created but not signed: %w", replacement.ID, err,
		)
	}

	if broadcast {
		return broadcastDraft(c.Context, svc, signed)
	}
	printRespJSON(signed)
	return nil
}
