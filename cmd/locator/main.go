// cmd/locator/main.go
package main

import (
	"fmt"
	"os"
)

var (
	// Version information (set by ldflags during build).
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", BoldRed("error:"), err)
		os.Exit(1)
	}
}
