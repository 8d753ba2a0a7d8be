// Package main is the swervesim command itself.
package main

import (
	"fmt"
	"os"

	swervecli "go.viam.com/swerve/cli"
)

func main() {
	app := swervecli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
