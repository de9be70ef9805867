package cashbook

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/replication"
)

// Gate is the explicit user confirmation consulted before a fresh day-end
// close. It receives the computed totals so the caller can show what is about
// to be archived. Returning false declines the close.
type Gate func(Totals) bool

// HistorySink receives every archived day after its close completes. Export
// is best-effort: sink failures are logged and never fail the archival.
type HistorySink interface {
	AppendClosedDay(ctx context.Context, record HistoryRecord) error
}

// archiver runs the day-end close: snapshot the day, tombstone its entries,
// roll the balance forward, prepend the snapshot to history.
//
// The steps are individually replicated with no commit boundary, so a crash
// between any two leaves the session partially archived. To make re-running
// converge, the computed HistoryRecord is written to a replicated marker key
// before the first destructive step. The marker is the replay log: resuming
// works exclusively from its recorded snapshot, never from live state, so a
// resume after new entries have been added clears only the archived day and
// reproduces the exact same record, balance and history as an uninterrupted
// run. The marker is cleared last.
type archiver struct {
	outParty *replication.Collection[OutPartyEntry]
	main     *replication.Collection[MainEntry]
	balance  *replication.Value[decimal.Decimal]
	rates    *replication.Value[ExchangeRates]
	history  *replication.Value[History]
	marker   *replication.Value[HistoryRecord]

	canWrite func() bool
	sink     HistorySink
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// execute closes the current day. A pending marker is resumed as-is; the gate
// is only consulted for a fresh close, since a pending marker was already
// confirmed once. Refused outright while the history or marker channel is
// still replaying.
func (a *archiver) execute(ctx context.Context, gate Gate) (HistoryRecord, error) {
	if !a.canWrite() {
		return HistoryRecord{}, ErrReadOnlySession
	}

	// The marker decides between a fresh close and a resume, and history is
	// rewritten whole from the local view. Acting on either before its replay
	// completed could overwrite an in-flight close or erase archived days.
	if !a.history.Synced() || !a.marker.Synced() {
		return HistoryRecord{}, ErrSyncIncomplete
	}

	if record, pending := a.marker.Get(); pending {
		a.logger.Info("resuming pending day-end close", zap.String("record", record.ID))
		return record, a.resume(ctx, record)
	}

	if !a.outParty.Synced() || !a.main.Synced() || !a.balance.Synced() {
		a.logger.Warn("closing day before initial sync completed; totals may miss remote entries")
	}

	outs := a.outParty.Live()
	mains := a.main.Live()
	opening, _ := a.balance.Get()
	rates, _ := a.rates.Get()
	totals := Aggregate(outs, mains, opening)

	if gate == nil || !gate(totals) {
		return HistoryRecord{}, ErrDeclined
	}

	record := HistoryRecord{
		ID:           a.newID(),
		ClosedDate:   a.now().Format(ClosedDateLayout),
		FinalBalance: totals.FinalBalance,
		Snapshot: Snapshot{
			OpeningBalance: opening,
			OutParty:       outs,
			Main:           mains,
			Rates:          rates,
		},
	}

	// The marker must be visible before the first tombstone goes out.
	if err := a.marker.Set(ctx, record); err != nil {
		return HistoryRecord{}, fmt.Errorf("write day-end marker: %w", err)
	}

	return record, a.resume(ctx, record)
}

// recover re-runs a pending close. Without a marker there is nothing to do.
func (a *archiver) recover(ctx context.Context) error {
	if !a.canWrite() {
		return ErrReadOnlySession
	}
	if !a.history.Synced() || !a.marker.Synced() {
		return ErrSyncIncomplete
	}
	record, pending := a.marker.Get()
	if !pending {
		return nil
	}
	a.logger.Info("recovering interrupted day-end close", zap.String("record", record.ID))
	return a.resume(ctx, record)
}

// pending reports the replicated marker of a half-applied close, if any.
func (a *archiver) pending() (HistoryRecord, bool) {
	return a.marker.Get()
}

// resume applies the destructive steps recorded in the marker. Every step is
// idempotent against a partially-archived session: tombstoning an absent
// entry, rewriting the same balance and re-prepending an already-present
// record all converge to the same end state.
func (a *archiver) resume(ctx context.Context, record HistoryRecord) error {
	for _, e := range record.Snapshot.OutParty {
		if err := a.outParty.Remove(ctx, e.ID); err != nil {
			return fmt.Errorf("clear out-party entry %s: %w", e.ID, err)
		}
	}
	for _, e := range record.Snapshot.Main {
		if err := a.main.Remove(ctx, e.ID); err != nil {
			return fmt.Errorf("clear main entry %s: %w", e.ID, err)
		}
	}

	if err := a.balance.Set(ctx, record.FinalBalance); err != nil {
		return fmt.Errorf("advance opening balance: %w", err)
	}

	// Always rewrite history, even when the record is already present
	// locally: a prior attempt may have applied it here and then failed the
	// replicated write.
	next, _ := a.history.Get()
	if !next.Contains(record.ID) {
		prepended := make(History, 0, len(next)+1)
		prepended = append(prepended, record)
		next = append(prepended, next...)
	}
	if err := a.history.Set(ctx, next); err != nil {
		return fmt.Errorf("prepend history record %s: %w", record.ID, err)
	}

	if err := a.marker.Clear(ctx); err != nil {
		return fmt.Errorf("clear day-end marker: %w", err)
	}

	a.logger.Info("day closed",
		zap.String("record", record.ID),
		zap.String("date", record.ClosedDate),
		zap.String("final_balance", record.FinalBalance.String()))

	if a.sink != nil {
		if err := a.sink.AppendClosedDay(ctx, record); err != nil {
			a.logger.Warn("history export failed", zap.String("record", record.ID), zap.Error(err))
		}
	}
	return nil
}
