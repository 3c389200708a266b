// Package main provides the datadetector command line tool.
package main

import (
	"os"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	root, c := newRootCmd()
	err := root.Execute()
	c.close()
	if err != nil {
		os.Exit(1)
	}
}
