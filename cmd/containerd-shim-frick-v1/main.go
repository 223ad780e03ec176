package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerd/containerd/v2/pkg/shim"

	"github.com/MarcinKonowalczyk/frick/cli"
	frickshim "github.com/MarcinKonowalczyk/frick/shim"
)

const runtimeName = "io.containerd.frick.v1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// The shim re-executes itself as the interpreter of each task
	if interpreter, args := isInterpreterArg(os.Args[1:]); interpreter {
		code := cli.Main(ctx, frickshim.InterpreterArg, args, os.Stdin, os.Stdout, os.Stderr)
		cancel()
		os.Exit(code)
	}

	shim.Run(ctx, frickshim.NewManager(runtimeName))
	cancel()
}

func isInterpreterArg(args []string) (bool, []string) {
	for i, arg := range args {
		if arg == frickshim.InterpreterArg {
			rest := make([]string, 0, len(args)-1)
			rest = append(rest, args[:i]...)
			return true, append(rest, args[i+1:]...)
		}
	}
	return false, args
}
