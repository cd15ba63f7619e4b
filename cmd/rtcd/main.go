// Package main implements rtcd, a host that loads a port configuration,
// creates its components, connects their ports and drives them from
// periodic execution contexts.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
)

const appName = "rtcd"

// Set with -ldflags "-X main.Version=... -X main.BuildTime=..."
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s", r, debug.Stack())
			code = 2
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("rtcd exited with error", "error", err)
		return 1
	}
	return 0
}
