// Package main is the entry point for stormdbg.
package main

import (
	"fmt"
	"os"

	"github.com/dshills/stormdbg/cmd/stormdbg/cmd"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
