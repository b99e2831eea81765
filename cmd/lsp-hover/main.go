package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/mcncl/lsp-hover/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.Execute(ctx, os.Stdout, os.Stderr, os.Args[1:], cli.BuildInfo{Version: version, Commit: commit, Date: date}); err != nil {
		stop()
		os.Exit(1)
	}
}
