package cashbook

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/presence"
	"github.com/IndikaEK123456/Cash-Book-5/replication"
	"github.com/IndikaEK123456/Cash-Book-5/role"
	"github.com/IndikaEK123456/Cash-Book-5/store"
)

// Options configures one ledger session.
type Options struct {
	// Store is the replicated substrate the session lives on. Required.
	Store store.Store

	// SessionID is the opaque, user-supplied sync id scoping this ledger.
	// Required; must be usable as a key segment.
	SessionID string

	// Resolver decides whether this process is the session's editor.
	// Required.
	Resolver *role.Resolver

	// Namespace prefixes every session key; DefaultNamespace when empty.
	Namespace string

	// Device labels this process in the presence signal; the resolver's
	// device class when empty.
	Device string

	// HeartbeatInterval is the presence period; presence.DefaultInterval
	// when zero.
	HeartbeatInterval time.Duration

	// Sink, when set, receives every archived day after its close completes.
	Sink HistorySink

	Logger *zap.Logger

	// Now and NewID override the clock and id generator in tests.
	Now   func() time.Time
	NewID func() string
}

func (o Options) validate() error {
	if o.Store == nil {
		return fmt.Errorf("store is required")
	}
	if o.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if o.Resolver == nil {
		return fmt.Errorf("role resolver is required")
	}
	return nil
}

// Session is the handle to one shared daily cash book. All replicated state
// of the session flows through it: entry collections, opening balance,
// exchange rates, archived history and the editor's presence signal. A
// process may hold several sessions at once; nothing here is global.
//
// Mutating calls on a viewer session are silent no-ops that never reach the
// store. Reads reflect whatever has been delivered so far and are provisional
// until Synced reports true.
type Session struct {
	id       string
	resolver *role.Resolver
	logger   *zap.Logger

	outParty *replication.Collection[OutPartyEntry]
	main     *replication.Collection[MainEntry]
	balance  *replication.Value[decimal.Decimal]
	rates    *replication.Value[ExchangeRates]
	history  *replication.Value[History]
	marker   *replication.Value[HistoryRecord]

	heartbeat *presence.Heartbeat
	monitor   *presence.Monitor
	archive   *archiver
	newID     func() string

	updates   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Open joins (or creates) the session named by Options.SessionID: it
// subscribes every replication channel, starts the presence heartbeat when
// this process is the editor, and returns the wired handle. Local state is
// provisional until the store finishes its initial replay.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	keys, err := newKeyring(namespace, opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	device := opts.Device
	if device == "" {
		device = string(opts.Resolver.Class())
	}

	s := &Session{
		id:       opts.SessionID,
		resolver: opts.Resolver,
		logger:   logger,
		newID:    newID,
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	canWrite := opts.Resolver.CanWrite

	s.outParty, err = replication.OpenCollection(ctx, opts.Store, keys.outParty, outPartyCodec(),
		func(e OutPartyEntry) string { return e.ID }, canWrite, logger.Named("repl.outparty"))
	if err != nil {
		return nil, fmt.Errorf("open out-party channel: %w", err)
	}
	s.main, err = replication.OpenCollection(ctx, opts.Store, keys.main, mainCodec(),
		func(e MainEntry) string { return e.ID }, canWrite, logger.Named("repl.main"))
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("open main channel: %w", err)
	}
	s.balance, err = replication.OpenValue(ctx, opts.Store, keys.balance, balanceCodec(), canWrite, logger.Named("repl.balance"))
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("open balance channel: %w", err)
	}
	s.rates, err = replication.OpenValue(ctx, opts.Store, keys.rates, ratesCodec(), canWrite, logger.Named("repl.rates"))
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("open rates channel: %w", err)
	}
	s.history, err = replication.OpenValue(ctx, opts.Store, keys.history, historyCodec(), canWrite, logger.Named("repl.history"))
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("open history channel: %w", err)
	}
	s.marker, err = replication.OpenValue(ctx, opts.Store, keys.dayEnd, markerCodec(), canWrite, logger.Named("repl.dayend"))
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("open day-end marker channel: %w", err)
	}

	s.monitor, err = presence.NewMonitor(ctx, opts.Store, keys.presence, opts.HeartbeatInterval, opts.Now, logger.Named("presence.monitor"))
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("open presence monitor: %w", err)
	}
	if canWrite() {
		s.heartbeat = presence.NewHeartbeat(opts.Store, keys.presence, device, opts.HeartbeatInterval, opts.Now, logger.Named("presence.heartbeat"))
		if err := s.heartbeat.Start(); err != nil {
			s.teardown()
			return nil, fmt.Errorf("start heartbeat: %w", err)
		}
	}

	s.archive = &archiver{
		outParty: s.outParty,
		main:     s.main,
		balance:  s.balance,
		rates:    s.rates,
		history:  s.history,
		marker:   s.marker,
		canWrite: canWrite,
		sink:     opts.Sink,
		now:      now,
		newID:    newID,
		logger:   logger.Named("dayend"),
	}

	go s.forwardUpdates()

	logger.Info("session opened",
		zap.String("session", opts.SessionID),
		zap.Bool("editor", canWrite()))
	return s, nil
}

// AddOutParty appends a new out-party entry with a fresh id and the next
// sequence index. On a viewer session nothing is written.
func (s *Session) AddOutParty(ctx context.Context, method PayMethod, amount decimal.Decimal) (OutPartyEntry, error) {
	entry := OutPartyEntry{
		ID:     s.newID(),
		Seq:    s.outParty.Len() + 1,
		Method: method,
		Amount: amount,
	}
	if err := entry.Validate(); err != nil {
		return OutPartyEntry{}, err
	}
	if err := s.outParty.Put(ctx, entry); err != nil {
		return OutPartyEntry{}, err
	}
	return entry, nil
}

// UpdateOutParty overwrites the entry under its id, last write wins.
func (s *Session) UpdateOutParty(ctx context.Context, entry OutPartyEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return s.outParty.Put(ctx, entry)
}

// RemoveOutParty tombstones the entry. Removing an absent id is a no-op.
func (s *Session) RemoveOutParty(ctx context.Context, id string) error {
	return s.outParty.Remove(ctx, id)
}

// AddMain appends a new main-book entry with a fresh id. On a viewer session
// nothing is written.
func (s *Session) AddMain(ctx context.Context, room, description string, method PayMethod, cashIn, cashOut decimal.Decimal) (MainEntry, error) {
	entry := MainEntry{
		ID:          s.newID(),
		Room:        room,
		Description: description,
		Method:      method,
		CashIn:      cashIn,
		CashOut:     cashOut,
	}
	if err := entry.Validate(); err != nil {
		return MainEntry{}, err
	}
	if err := s.main.Put(ctx, entry); err != nil {
		return MainEntry{}, err
	}
	return entry, nil
}

// UpdateMain overwrites the entry under its id, last write wins.
func (s *Session) UpdateMain(ctx context.Context, entry MainEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return s.main.Put(ctx, entry)
}

// RemoveMain tombstones the entry. Removing an absent id is a no-op.
func (s *Session) RemoveMain(ctx context.Context, id string) error {
	return s.main.Remove(ctx, id)
}

// SetOpeningBalance seeds or corrects the opening balance. Refused while a
// day-end close is pending, since resuming that close will overwrite the
// balance with the archived final balance.
func (s *Session) SetOpeningBalance(ctx context.Context, balance decimal.Decimal) error {
	if s.resolver.CanWrite() {
		if _, pending := s.marker.Get(); pending {
			return ErrArchivalPending
		}
	}
	return s.balance.Set(ctx, balance)
}

// SetRates replaces the session's exchange rates.
func (s *Session) SetRates(ctx context.Context, rates ExchangeRates) error {
	for code, rate := range rates {
		if code == "" || rate.IsNegative() {
			return fmt.Errorf("invalid exchange rate %q: %s", code, rate)
		}
	}
	return s.rates.Set(ctx, rates)
}

// OutParty returns the live out-party entries ordered by sequence index.
// The order is a display hint; replicas may disagree on it.
func (s *Session) OutParty() []OutPartyEntry {
	entries := s.outParty.Live()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries
}

// Main returns the live main-book entries in first-seen order.
func (s *Session) Main() []MainEntry {
	return s.main.Live()
}

// OpeningBalance returns the replicated opening balance, zero when unset.
func (s *Session) OpeningBalance() decimal.Decimal {
	balance, ok := s.balance.Get()
	if !ok {
		return decimal.Zero
	}
	return balance
}

// Rates returns the replicated exchange rates, nil when unset.
func (s *Session) Rates() ExchangeRates {
	rates, _ := s.rates.Get()
	return rates
}

// History returns the archived days, newest first.
func (s *Session) History() History {
	history, _ := s.history.Get()
	return history
}

// Totals aggregates the live entries and opening balance. final is false
// while any of the session's channels is still replaying: the figures are
// then provisional and must not be presented as settled.
func (s *Session) Totals() (Totals, bool) {
	totals := Aggregate(s.outParty.Live(), s.main.Live(), s.OpeningBalance())
	return totals, s.Synced()
}

// Synced reports whether every replication channel of the session has
// finished its initial replay.
func (s *Session) Synced() bool {
	return s.outParty.Synced() && s.main.Synced() && s.balance.Synced() &&
		s.rates.Synced() && s.history.Synced() && s.marker.Synced()
}

// PeerActive reports whether the editor's heartbeat has been seen recently.
// Advisory connectivity state only.
func (s *Session) PeerActive() bool {
	return s.monitor.Active()
}

// Editor reports whether this session may mutate the ledger.
func (s *Session) Editor() bool {
	return s.resolver.CanWrite()
}

// Updates signals, coalesced, every change to any replicated state of the
// session.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// CloseDay archives the current day: it snapshots live state into a
// HistoryRecord, asks the gate for confirmation, tombstones the day's
// entries, rolls the opening balance forward and prepends the record to
// history. A close left half-applied by a crash is resumed instead, without
// consulting the gate again. Viewers get ErrReadOnlySession; until the
// history and marker channels finish their initial replay the close is
// refused with ErrSyncIncomplete, since it rewrites history whole.
func (s *Session) CloseDay(ctx context.Context, gate Gate) (HistoryRecord, error) {
	return s.archive.execute(ctx, gate)
}

// PendingDayEnd reports whether a day-end close is half-applied, and the
// record it will converge to.
func (s *Session) PendingDayEnd() (HistoryRecord, bool) {
	return s.archive.pending()
}

// RecoverDayEnd re-runs a half-applied day-end close to convergence. A no-op
// when nothing is pending. Viewers get ErrReadOnlySession, and like CloseDay
// it is refused with ErrSyncIncomplete until the history and marker channels
// finish their initial replay.
func (s *Session) RecoverDayEnd(ctx context.Context) error {
	return s.archive.recover(ctx)
}

// Close tears the session down: heartbeat, presence monitor and every
// replication channel are stopped before Close returns, so a follow-up Open
// on another session id cannot receive this session's notifications.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.heartbeat != nil {
			s.heartbeat.Stop()
		}
		s.teardown()
		s.logger.Info("session closed", zap.String("session", s.id))
	})
}

// teardown closes whatever has been wired so far, in reverse open order.
func (s *Session) teardown() {
	if s.monitor != nil {
		s.monitor.Close()
	}
	if s.marker != nil {
		s.marker.Close()
	}
	if s.history != nil {
		s.history.Close()
	}
	if s.rates != nil {
		s.rates.Close()
	}
	if s.balance != nil {
		s.balance.Close()
	}
	if s.main != nil {
		s.main.Close()
	}
	if s.outParty != nil {
		s.outParty.Close()
	}
}

// forwardUpdates fans the per-channel change signals into one coalesced
// session-level signal.
func (s *Session) forwardUpdates() {
	for {
		select {
		case <-s.done:
			return
		case <-s.outParty.Updates():
		case <-s.main.Updates():
		case <-s.balance.Updates():
		case <-s.rates.Updates():
		case <-s.history.Updates():
		case <-s.marker.Updates():
		}
		select {
		case s.updates <- struct{}{}:
		default:
		}
	}
}
