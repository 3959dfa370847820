// Package main is the entrypoint for pfp, the parallel file processor.
package main

import "github.com/tutu-network/pfp/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
