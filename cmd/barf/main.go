// Package main provides the entry point for the barf CLI.
package main

import (
	"fmt"
	"os"

	"github.com/vx-daniel/barf/cmd/barf/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
