// Package main is the entry point for the ppctl CLI tool.
package main

import (
	"os"

	"github.com/tidewater-labs/plantpulse/cmd/ppctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
