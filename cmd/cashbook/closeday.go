package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	cashbook "github.com/IndikaEK123456/Cash-Book-5"
)

// closeDayCmd archives the current day and rolls the balance forward.
type closeDayCmd struct {
	yes bool
}

func (*closeDayCmd) Name() string     { return "close-day" }
func (*closeDayCmd) Synopsis() string { return "archive the current day and roll the balance forward" }
func (*closeDayCmd) Usage() string {
	return `cashbook close-day [-yes]

  Computes the day's totals, asks for confirmation and archives the day.
  An interrupted earlier close is finished as recorded, without asking
  again. Only the editor device may close the day.
`
}

func (c *closeDayCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "archive without the confirmation prompt")
}

func (c *closeDayCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	session, log, shutdown, err := openSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer shutdown()

	// Closing against a half-replayed ledger would archive a partial day.
	if !waitSynced(ctx, session, 30*time.Second) {
		fmt.Fprintln(os.Stderr, "Error: initial sync did not complete, refusing to close a partial day")
		return subcommands.ExitFailure
	}

	record, err := session.CloseDay(ctx, c.gate)
	switch {
	case errors.Is(err, cashbook.ErrDeclined):
		fmt.Println("close declined, nothing archived")
		return subcommands.ExitSuccess
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	log.Info("day closed",
		zap.String("record", record.ID),
		zap.String("date", record.ClosedDate),
		zap.String("final_balance", record.FinalBalance.String()))
	return subcommands.ExitSuccess
}

func (c *closeDayCmd) gate(totals cashbook.Totals) bool {
	if c.yes {
		return true
	}
	fmt.Printf("Close the day?\n")
	fmt.Printf("  total cash in:  %s\n", totals.TotalCashIn)
	fmt.Printf("  total cash out: %s\n", totals.TotalCashOut)
	fmt.Printf("  final balance:  %s\n", totals.FinalBalance)
	fmt.Printf("[y/N] ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
