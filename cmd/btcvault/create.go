package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

var create = cli.Command{
	Name:  "create",
	Usage: "create a new wallet, or restore one from its mnemonic",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Usage:    "the name of the new wallet",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "mnemonic",
			Usage: "the space separated mnemonic, generated if missing",
		},
		&passwordFlag,
		&cli.BoolFlag{
			Name:  "restore",
			Usage: "discover the used addresses of the mnemonic with the explorer",
		},
		&cli.IntFlag{
			Name:  "gap-limit",
			Usage: "the number of consecutive unused addresses ending the discovery",
			Value: 20,
		},
	},
	Action: createAction,
}

func createAction(c *cli.Context) error {
	restore := c.Bool("restore")
	svc, cleanup, err := getServices(restore)
	if err != nil {
		return err
	}
	defer cleanup()

	mnemonic := strings.Fields(c.String("mnemonic"))
	if len(mnemonic) <= 0 {
		if restore {
			return fmt.Errorf("restore requires --mnemonic")
		}
		if mnemonic, err = svc.wallet.GenSeed(c.Context); err != nil {
			return err
		}
		fmt.Println("write down the mnemonic of the new wallet:")
		fmt.Println(strings.Join(mnemonic, " "))
		fmt.Println()
	}

	name, password := c.String("name"), c.String(passwordFlag.Name)
	if restore {
		info, err := svc.wallet.RestoreWallet(
			c.Context, name, mnemonic, password, c.Int("gap-limit"),
		)
		if err != nil {
			return err
		}
		printRespJSON(info)
		return nil
	}

	info, err := svc.wallet.CreateWallet(c.Context, name, mnemonic, password)
	if err != nil {
		return err
	}
	printRespJSON(info)
	return nil
}
