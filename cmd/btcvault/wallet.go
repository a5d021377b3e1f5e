package main

import (
	"github.com/urfave/cli/v2"
)

var walletCmd = cli.Command{
	Name:  "wallet",
	Usage: "list the wallets, show one of them or label its addresses",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "list all the wallets",
			Action: listWalletsAction,
		},
		{
			Name:   "info",
			Usage:  "show the wallet, its balance and descriptors",
			Flags:  []cli.Flag{&walletFlag},
			Action: walletInfoAction,
		},
		{
			Name:  "label",
			Usage: "label an address or a txid, an empty label removes it",
			Flags: []cli.Flag{
				&walletFlag,
				&cli.StringFlag{
					Name:     "key",
					Usage:    "the address or txid to label",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "label",
					Usage: "the label",
				},
			},
			Action: labelAction,
		},
	},
}

func listWalletsAction(c *cli.Context) error {
	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	wallets, err := svc.wallet.ListWallets(c.Context)
	if err != nil {
		return err
	}

	printRespJSON(wallets)
	return nil
}

func walletInfoAction(c *cli.Context) error {
	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	walletName := c.String(walletFlag.Name)
	info, err := svc.wallet.GetWallet(c.Context, walletName)
	if err != nil {
		return err
	}
	balance, err := svc.wallet.GetBalance(c.Context, walletName)
	if err != nil {
		return err
	}
	descriptors, err := svc.wallet.GetDescriptors(c.Context, walletName)
	if err != nil {
		return err
	}

	printRespJSON(map[string]interface{}{
		"wallet":      info,
		"balance":     balance,
		"descriptors": descriptors,
	})
	return nil
}

func labelAction(c *cli.Context) error {
	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	return svc.wallet.SetLabel(
		c.Context, c.String(walletFlag.Name), c.String("key"), c.String("label"),
	)
}
