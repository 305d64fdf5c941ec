// Package main is the entry point for the mediacore HLS engine server.
package main

import (
	"os"

	"github.com/mediacore/hlsengine/cmd/mediacoreserver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
