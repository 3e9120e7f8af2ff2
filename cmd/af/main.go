package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/satyaki-up/agileflow/internal/cli"
)

// Set by ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	cli.SetVersion(version)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
