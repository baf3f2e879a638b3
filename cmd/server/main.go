// Package main is the entry point for the user-auth server.
//
// WHY cmd/server/?
// The cmd/ directory is the Go convention for executable entry points. All
// actual logic lives in internal/; main only parses the command line and
// hands a config.Config to internal/server.
package main

import (
	"context"
	"fmt"
	"os"
)

// Version information set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

func main() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
