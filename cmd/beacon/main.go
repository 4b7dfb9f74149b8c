// Package main runs the beacon command line.
package main

import (
	"os"

	"github.com/roach88/beacon/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	os.Exit(cli.GetExitCode(err))
}
