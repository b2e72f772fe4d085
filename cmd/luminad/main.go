package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[luminad] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "luminad"
	app.Usage = "Lumina staking core daemon."
	app.Commands = append(app.Commands, initCommand, startCommand)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
