package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/MarcinKonowalczyk/frick/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Main(ctx, "frick", os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
