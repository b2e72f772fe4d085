package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/luminacoin/lumina-core/config"
)

var initCommand = cli.Command{
	Name:  "init",
	Usage: "Initialize a home directory with a default config file.",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  homeFlag,
			Usage: "Path to the daemon home directory",
			Value: config.DefaultHomeDir,
		},
		cli.BoolFlag{
			Name:  forceFlag,
			Usage: "Override existing configuration",
		},
	},
	Action: initHome,
}

func initHome(ctx *cli.Context) error {
	homePath := ctx.String(homeFlag)
	force := ctx.Bool(forceFlag)

	if _, err := os.Stat(config.ConfigFile(homePath)); err == nil && !force {
		return fmt.Errorf("home directory already initialized: %s", homePath)
	}

	return config.WriteDefaultConfig(homePath)
}
