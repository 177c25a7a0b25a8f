package main

import (
	"fmt"
	"os"

	"github.com/nongbuhae/cropdoc/cmd"
	"github.com/nongbuhae/cropdoc/internal/conf"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings, cmd.BuildInfo{Version: version, BuildDate: buildDate})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
