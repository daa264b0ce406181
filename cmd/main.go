package main

import (
	"os"

	"github.com/dwsnet/dwsctl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
