// Package main provides the CLI entry point for the OpenClaw agent engine.
package main

import (
	"os"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
