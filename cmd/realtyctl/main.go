// Package main provides realtyctl, a command-line client for the realty
// platform.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time.
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
