// Command simplestorage deploys the SimpleStorage contract, stores a value in it, verifies it on
// Etherscan and provides the helper tasks around it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ans-sigalas/simplestorage/engine/cli"
	"github.com/ans-sigalas/simplestorage/engine/commands"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run executes the command line in args and returns the process exit code.
func run(args []string, stdout io.Writer) int {
	level, err := cli.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid LOG_LEVEL: %v\n", err)

		return 1
	}

	lggr, err := cli.NewLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)

		return 1
	}
	defer func() { _ = lggr.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := cli.NewBase(lggr, commands.NewRootCmd())
	base.AddCommand(commands.NewCommands(lggr).All()...)
	base.RootCmd().SetArgs(args)
	base.RootCmd().SetOut(stdout)

	if err := base.Run(ctx); err != nil {
		base.Log.Errorw("Command failed", "err", err)

		return 1
	}

	return 0
}
