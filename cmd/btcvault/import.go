package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var importCmd = cli.Command{
	Name:  "import",
	Usage: "import a legacy wallet file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Usage:    "the name of the imported wallet",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "file",
			Usage:    "the path of the legacy wallet file",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "file-password",
			Usage: "the passphrase of the legacy file, if encrypted",
		},
		&passwordFlag,
	},
	Action: importAction,
}

var export = cli.Command{
	Name:  "export",
	Usage: "export the public root of an imported legacy wallet to a watch-only legacy wallet file",
	Flags: []cli.Flag{
		&walletFlag,
		&passwordFlag,
		&cli.StringFlag{
			Name:     "file",
			Usage:    "the path of the exported file",
			Required: true,
		},
	},
	Action: exportAction,
}

func importAction(c *cli.Context) error {
	file, err := os.ReadFile(c.String("file"))
	if err != nil {
		return err
	}

	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.wallet.ImportLegacyWallet(
		c.Context, c.String("name"), file,
		c.String("file-password"), c.String(passwordFlag.Name),
	)
	if err != nil {
		return err
	}

	printRespJSON(res)
	return nil
}

func exportAction(c *cli.Context) error {
	path := c.String("file")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file %s already exists", path)
	}

	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	// Watch-only wallets can't be unlocked.
	if c.String(passwordFlag.Name) != "" {
		if err := unlockWallet(c, svc); err != nil {
			return err
		}
	}

	file, err := svc.wallet.ExportLegacyWallet(c.Context, c.String(walletFlag.Name))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, file, 0600); err != nil {
		return err
	}

	fmt.Println("exported to " + path)
	return nil
}
