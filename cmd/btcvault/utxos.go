package main

import (
	"github.com/urfave/cli/v2"
)

var utxos = cli.Command{
	Name:   "utxos",
	Usage:  "list the unspent utxos of the wallet",
	Flags:  []cli.Flag{&walletFlag},
	Action: listUtxosAction,
}

var sync = cli.Command{
	Name:   "sync",
	Usage:  "fetch the utxos of the wallet addresses from the explorer",
	Flags:  []cli.Flag{&walletFlag},
	Action: syncAction,
}

func listUtxosAction(c *cli.Context) error {
	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	list, err := svc.wallet.ListUtxos(c.Context, c.String(walletFlag.Name))
	if err != nil {
		return err
	}

	printRespJSON(list)
	return nil
}

func syncAction(c *cli.Context) error {
	svc, cleanup, err := getServices(true)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.wallet.SyncUtxos(c.Context, c.String(walletFlag.Name))
	if err != nil {
		return err
	}

	printRespJSON(res)
	return nil
}
