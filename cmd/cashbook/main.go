// Command cashbook joins a shared daily cash ledger session as the local
// device: watch tails the replicated ledger and logs the running totals,
// close-day archives the current day after confirmation. The session, sync
// backend and device role all come from the environment.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"

	"github.com/google/subcommands"
)

var (
	envFile = flag.String("env", "", "path to an optional .env file")
	debug   = flag.Bool("debug", false, "log per-notification replication events")
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&watchCmd{}, "ledger")
	commander.Register(&closeDayCmd{}, "ledger")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(int(commander.Execute(ctx)))
}
