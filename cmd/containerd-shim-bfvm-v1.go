package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MarcinKonowalczyk/bfvm/bf"
	"github.com/MarcinKonowalczyk/bfvm/flags"
	bf_shim "github.com/MarcinKonowalczyk/bfvm/shim"

	"github.com/containerd/containerd/v2/pkg/shim"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Maybe hijack the shim to run as the interpreter
	hijack, args := isInterpreterArg(os.Args[1:])

	if hijack {
		if err := runInterpreter(ctx, args); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	} else {
		shim.Run(ctx, bf_shim.NewManager("io.containerd.bfvm.v1"))
	}
}

///////////////

func isInterpreterArg(args []string) (bool, []string) {
	for i, arg := range args {
		if arg == bf_shim.InterpreterArg {
			return true, append(args[:i], args[i+1:]...)
		}
	}
	return false, args
}

func runInterpreter(ctx context.Context, args []string) error {
	opts, err := flags.Parse(bf_shim.InterpreterArg, args)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(opts.Filename)
	if err != nil {
		return err
	}

	return bf.RunContext(ctx, string(source), os.Stdin, os.Stdout, opts.Config)
}
