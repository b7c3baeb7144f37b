package main

import (
	"os"

	"yukkuri/cmd"
	"yukkuri/internal/log"
	"yukkuri/pkg/build"
)

// main wires build information into the CLI and maps command errors to a
// non-zero exit status.
func main() {
	// Development builds run without ldflags and keep the default build info.
	if err := build.Initialize(); err != nil {
		log.Debugf("Build info incomplete: %v", err)
	}

	if err := cmd.Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
