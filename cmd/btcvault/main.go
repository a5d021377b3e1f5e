package main

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	walletFlag = cli.StringFlag{
		Name:     "wallet",
		Aliases:  []string{"w"},
		Usage:    "the id or name of the wallet",
		Required: true,
	}
	passwordFlag = cli.StringFlag{
		Name:    "password",
		Aliases: []string{"p"},
		Usage:   "the passphrase encrypting the wallet secret",
		EnvVars: []string{"BTCVAULT_PASSWORD"},
	}
)

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "btcvault"
	app.Usage = "Command line interface of a self-custodial bitcoin wallet"
	app.Commands = append(
		app.Commands,
		&configCmd,
		&genseed,
		&create,
		&importCmd,
		&export,
		&walletCmd,
		&address,
		&utxos,
		&sync,
		&fees,
		&send,
		&bumpfee,
		&abandon,
		&psbtCmd,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func printRespJSON(resp interface{}) {
	buf, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}
	fmt.Println(string(buf))
}

func fatal(err error) {
	log.WithError(err).Error("btcvault")
	fmt.Fprintf(os.Stderr, "[btcvault] %v\n", err)
	os.Exit(1)
}
