// Package main provides the entry point for the mnemolite CLI.
package main

import (
	"os"

	"github.com/giak/mnemolite/cmd/mnemolite/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
