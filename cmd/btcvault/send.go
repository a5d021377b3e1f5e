package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tdex-network/btcvault/internal/core/application"
	"github.com/tdex-network/btcvault/pkg/feeestimator"
	"github.com/tdex-network/btcvault/pkg/wallet"
	"github.com/urfave/cli/v2"
)

var (
	feeRateFlag = cli.Float64Flag{
		Name:  "fee-rate",
		Usage: "the fee rate in sat/vB, overrides --tier",
	}
	tierFlag = cli.StringFlag{
		Name:  "tier",
		Usage: "the fee tier: minimum, economy, normal, priority",
		Value: feeestimator.Normal.String(),
	}
	changeTypeFlag = cli.StringFlag{
		Name:  "change-type",
		Usage: "the type of the change address",
		Value: wallet.NativeSegwit.String(),
	}
	broadcastFlag = cli.BoolFlag{
		Name:  "broadcast",
		Usage: "broadcast the signed transaction with the explorer",
	}
)

var send = cli.Command{
	Name:  "send",
	Usage: "create, sign and optionally broadcast a transaction",
	Flags: []cli.Flag{
		&walletFlag,
		&passwordFlag,
		&cli.StringSliceFlag{
			Name:     "to",
			Usage:    "a recipient in the form address:amount_in_sats",
			Required: true,
		},
		&feeRateFlag,
		&tierFlag,
		&changeTypeFlag,
		&cli.BoolFlag{
			Name:  "disable-rbf",
			Usage: "don't signal replaceability",
		},
		&cli.BoolFlag{
			Name:  "draft",
			Usage: "only create the draft, to be signed externally via psbt",
		},
		&broadcastFlag,
	},
	Action: sendAction,
}

func sendAction(c *cli.Context) error {
	recipients, err := parseRecipients(c.StringSlice("to"))
	if err != nil {
		return err
	}
	tier, changeType, err := parseFeeAndChangeFlags(c)
	if err != nil {
		return err
	}

	isDraft := c.Bool("draft")
	broadcast := c.Bool(broadcastFlag.Name)
	if isDraft && broadcast {
		return fmt.Errorf("a draft can't be broadcasted")
	}

	// The explorer serves both the fee estimates and the broadcast.
	withExplorer := broadcast || c.Float64(feeRateFlag.Name) <= 0
	svc, cleanup, err := getServices(withExplorer)
	if err != nil {
		return err
	}
	defer cleanup()

	req := application.SendRequest{
		WalletID:   c.String(walletFlag.Name),
		Recipients: recipients,
		FeeRate:    c.Float64(feeRateFlag.Name),
		Tier:       tier,
		ChangeType: changeType,
		DisableRBF: c.Bool("disable-rbf"),
	}

	if isDraft {
		draft, err := svc.transaction.CreateDraft(c.Context, req)
		if err != nil {
			return err
		}
		printRespJSON(draft)
		return nil
	}

	if err := unlockWallet(c, svc); err != nil {
		return err
	}
	draft, err := svc.transaction.Send(c.Context, req)
	if err != nil {
		return err
	}

	if broadcast {
		return broadcastDraft(c.Context, svc, draft)
	}
	printRespJSON(draft)
	return nil
}

func broadcastDraft(
	ctx context.Context, svc *services, draft *application.DraftInfo,
) error {
	txid, err := svc.explorer.BroadcastTransaction(ctx, draft.TxHex)
	if err != nil {
		return fmt.Errorf("draft %s not broadcasted: %w", draft.ID, err)
	}

	printRespJSON(map[string]string{
		"draft": draft.ID,
		"txid":  txid,
	})
	return nil
}

func parseRecipients(list []string) ([]application.Recipient, error) {
	recipients := make([]application.Recipient, 0, len(list))
	for _, str := range list {
		i := strings.LastIndex(str, ":")
		if i <= 0 {
			return nil, fmt.Errorf("invalid recipient %q, must be address:amount", str)
		}
		amount, err := strconv.ParseUint(str[i+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount for recipient %q: %w", str, err)
		}
		recipients = append(recipients, application.Recipient{
			Address: str[:i],
			Amount:  amount,
		})
	}
	return recipients, nil
}

func parseFeeAndChangeFlags(
	c *cli.Context,
) (feeestimator.Tier, wallet.AddressType, error) {
	tier, err := feeestimator.ParseTier(c.String(tierFlag.Name))
	if err != nil {
		return 0, 0, err
	}
	changeType, err := wallet.ParseAddressType(c.String(changeTypeFlag.Name))
	if err != nil {
		return 0, 0, err
	}
	if c.Float64(feeRateFlag.Name) < 0 {
		return 0, 0, fmt.Errorf("--%s must not be negative", feeRateFlag.Name)
	}
	return tier, changeType, nil
}
