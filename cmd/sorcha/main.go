// Package main is the single-binary entrypoint for the Sorcha node.
package main

import "github.com/sorcha-network/sorcha/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
