// Package main provides the entry point for the clauder CLI.
package main

import (
	"fmt"
	"os"

	"github.com/relaydev/clauder/cmd/clauder/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
