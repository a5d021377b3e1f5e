package main

import (
	"encoding/hex"
	"fmt"

	"github.com/tdex-network/btcvault/pkg/wallet"
	"github.com/urfave/cli/v2"
)

var addressTypeFlag = cli.StringFlag{
	Name:  "type",
	Usage: "the address type: legacy, nested-segwit, native-segwit, taproot",
	Value: wallet.NativeSegwit.String(),
}

var address = cli.Command{
	Name:  "address",
	Usage: "derive new addresses or list the derived ones",
	Flags: []cli.Flag{
		&walletFlag,
		&addressTypeFlag,
		&cli.BoolFlag{
			Name:  "change",
			Usage: "derive change addresses",
		},
		&cli.IntFlag{
			Name:  "num",
			Usage: "the number of addresses to derive",
			Value: 1,
		},
	},
	Action: addressAction,
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "list the derived and imported addresses",
			Flags: []cli.Flag{
				&walletFlag,
				&cli.StringFlag{
					Name:  "type",
					Usage: "list the addresses of the given type only",
				},
			},
			Action: listAddressesAction,
		},
		{
			Name:  "taproot-scripts",
			Usage: "derive a taproot address committing to the given leaf scripts",
			Flags: []cli.Flag{
				&walletFlag,
				&cli.BoolFlag{
					Name:  "change",
					Usage: "derive a change address",
				},
				&cli.StringSliceFlag{
					Name:     "leaf",
					Usage:    "a hex encoded leaf script, repeat for every leaf",
					Required: true,
				},
			},
			Action: taprootScriptsAction,
		},
	},
}

func addressAction(c *cli.Context) error {
	addrType, err := wallet.ParseAddressType(c.String(addressTypeFlag.Name))
	if err != nil {
		return err
	}

	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	addresses, err := svc.wallet.DeriveAddresses(
		c.Context, c.String(walletFlag.Name), addrType,
		c.Bool("change"), c.Int("num"),
	)
	if err != nil {
		return err
	}

	printRespJSON(addresses)
	return nil
}

func listAddressesAction(c *cli.Context) error {
	var addrType *wallet.AddressType
	if str := c.String("type"); str != "" {
		t, err := wallet.ParseAddressType(str)
		if err != nil {
			return err
		}
		addrType = &t
	}

	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	addresses, err := svc.wallet.ListAddresses(
		c.Context, c.String(walletFlag.Name), addrType,
	)
	if err != nil {
		return err
	}

	printRespJSON(addresses)
	return nil
}

func taprootScriptsAction(c *cli.Context) error {
	leaves := c.StringSlice("leaf")
	scripts := make([][]byte, 0, len(leaves))
	for i, leaf := range leaves {
		script, err := hex.DecodeString(leaf)
		if err != nil {
			return fmt.Errorf("leaf %d: invalid hex script", i)
		}
		scripts = append(scripts, script)
	}

	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	addr, err := svc.wallet.DeriveTaprootScriptAddress(
		c.Context, c.String(walletFlag.Name), c.Bool("change"), scripts,
	)
	if err != nil {
		return err
	}

	printRespJSON(addr)
	return nil
}
