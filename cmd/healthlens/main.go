// Command healthlens is the entry point for the per-user health insight
// engine. It provides a CLI interface (via Cobra) and the HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/healthlens/healthlens-go/cmd/healthlens/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
