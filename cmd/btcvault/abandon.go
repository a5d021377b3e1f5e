package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var abandon = cli.Command{
	Name:  "abandon",
	Usage: "abandon a draft and release the utxos it claims",
	Flags: []cli.Flag{
		&walletFlag,
		&cli.StringFlag{
			Name:     "draft",
			Usage:    "the id of the draft to abandon",
			Required: true,
		},
	},
	Action: abandonAction,
}

func abandonAction(c *cli.Context) error {
	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	draftID := c.String("draft")
	if err := svc.transaction.AbandonDraft(
		c.Context, c.String(walletFlag.Name), draftID,
	); err != nil {
		return err
	}

	fmt.Println("draft " + draftID + " abandoned")
	return nil
}
