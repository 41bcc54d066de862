// sdkctl - command-line client for the gaming-sdk API.
package main

import (
	"os"

	"github.com/gamingsdk/sdk-go/internal/cli"
	"github.com/gamingsdk/sdk-go/internal/version"
)

// Set by ldflags during release builds.
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
