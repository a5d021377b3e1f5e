package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

var draftFlag = cli.StringFlag{
	Name:     "draft",
	Usage:    "the id of the draft",
	Required: true,
}

var psbtCmd = cli.Command{
	Name:  "psbt",
	Usage: "export the psbt of a draft or combine an externally signed one",
	Subcommands: []*cli.Command{
		{
			Name:   "get",
			Usage:  "print the base64 psbt of the draft",
			Flags:  []cli.Flag{&walletFlag, &draftFlag},
			Action: getPsbtAction,
		},
		{
			Name:  "combine",
			Usage: "merge the signatures of a base64 psbt into the draft",
			Flags: []cli.Flag{
				&walletFlag,
				&draftFlag,
				&cli.StringFlag{
					Name:  "psbt",
					Usage: "the signed base64 psbt",
				},
				&cli.StringFlag{
					Name:  "file",
					Usage: "the path of a file containing the signed base64 psbt",
				},
			},
			Action: combinePsbtAction,
		},
		{
			Name:   "list",
			Usage:  "list the drafts of the wallet",
			Flags:  []cli.Flag{&walletFlag},
			Action: listDraftsAction,
		},
	},
}

func getPsbtAction(c *cli.Context) error {
	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	psbt, err := svc.transaction.GetPSBT(
		c.Context, c.String(walletFlag.Name), c.String(draftFlag.Name),
	)
	if err != nil {
		return err
	}

	fmt.Println(psbt)
	return nil
}

func combinePsbtAction(c *cli.Context) error {
	psbt := c.String("psbt")
	if path := c.String("file"); path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		psbt = strings.TrimSpace(string(buf))
	}
	if psbt == "" {
		return fmt.Errorf("one of --psbt or --file is required")
	}

	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	draft, err := svc.transaction.CombinePSBT(
		c.Context, c.String(walletFlag.Name), c.String(draftFlag.Name), psbt,
	)
	if err != nil {
		return err
	}

	printRespJSON(draft)
	return nil
}

func listDraftsAction(c *cli.Context) error {
	svc, cleanup, err := getServices(false)
	if err != nil {
		return err
	}
	defer cleanup()

	drafts, err := svc.transaction.ListDrafts(c.Context, c.String(walletFlag.Name))
	if err != nil {
		return err
	}

	printRespJSON(drafts)
	return nil
}
