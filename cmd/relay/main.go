// Package main is the entry point for the relay CLI.
package main

import (
	"os"

	"github.com/capitalize-ai/imbot-relay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
