package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"
)

// watchCmd tails the replicated ledger until interrupted.
type watchCmd struct{}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "follow the shared ledger and log the running totals" }
func (*watchCmd) Usage() string {
	return `cashbook watch

  Joins the configured session and logs the totals on every replicated
  change until interrupted.
`
}

func (*watchCmd) SetFlags(*flag.FlagSet) {}

func (*watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	session, log, shutdown, err := openSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer shutdown()

	if !waitSynced(ctx, session, 30*time.Second) {
		log.Warn("initial sync not completed, totals are provisional")
	}
	if record, pending := session.PendingDayEnd(); pending {
		log.Warn("interrupted day-end close found, run close-day to finish it",
			zap.String("record", record.ID), zap.String("date", record.ClosedDate))
	}

	log.Info("watching ledger session", zap.Bool("editor", session.Editor()))
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return subcommands.ExitSuccess
		case <-session.Updates():
			totals, final := session.Totals()
			log.Info("ledger updated",
				zap.Int("out_party_entries", len(session.OutParty())),
				zap.Int("main_entries", len(session.Main())),
				zap.String("total_cash_in", totals.TotalCashIn.String()),
				zap.String("total_cash_out", totals.TotalCashOut.String()),
				zap.String("final_balance", totals.FinalBalance.String()),
				zap.Bool("final", final),
				zap.Bool("peer_active", session.PeerActive()))
		}
	}
}
