package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	cashbook "github.com/IndikaEK123456/Cash-Book-5"
	"github.com/IndikaEK123456/Cash-Book-5/config"
	"github.com/IndikaEK123456/Cash-Book-5/export/sheets"
	"github.com/IndikaEK123456/Cash-Book-5/pkg/logger"
	"github.com/IndikaEK123456/Cash-Book-5/role"
)

// openSession wires configuration, logger, sync backend and ledger session
// together. The returned shutdown function tears everything down in reverse
// order and must be called even when openSession's caller fails later.
func openSession(ctx context.Context) (*cashbook.Session, *zap.Logger, func(), error) {
	cfg, err := config.Load(*envFile)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger := logger.Must(logger.New(*debug))
	zap.ReplaceGlobals(baseLogger)

	st, closeStore, err := config.OpenStore(ctx, cfg, baseLogger)
	if err != nil {
		_ = baseLogger.Sync()
		return nil, nil, nil, fmt.Errorf("open sync backend: %w", err)
	}

	teardown := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := closeStore(closeCtx); err != nil {
			baseLogger.Error("failed to close sync backend", zap.Error(err))
		}
		_ = baseLogger.Sync()
	}

	resolver, err := role.NewResolver(cfg.Device.Class, localPlatform(), cfg.Device.Editor)
	if err != nil {
		teardown()
		return nil, nil, nil, fmt.Errorf("role resolution refused: %w", err)
	}

	var sink cashbook.HistorySink
	if cfg.ExportEnabled() {
		sheetSink, err := sheets.New(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.CredentialsPath,
			cfg.Sheets.HistoryRange, baseLogger.Named("export.sheets"))
		if err != nil {
			teardown()
			return nil, nil, nil, fmt.Errorf("init history export: %w", err)
		}
		sink = sheetSink
	}

	session, err := cashbook.Open(ctx, cashbook.Options{
		Store:             st,
		SessionID:         cfg.Sync.SessionID,
		Resolver:          resolver,
		Namespace:         cfg.Sync.Namespace,
		Device:            string(cfg.Device.Class),
		HeartbeatInterval: cfg.Sync.HeartbeatInterval,
		Sink:              sink,
		Logger:            baseLogger,
	})
	if err != nil {
		teardown()
		return nil, nil, nil, fmt.Errorf("open ledger session: %w", err)
	}

	shutdown := func() {
		session.Close()
		teardown()
	}
	return session, baseLogger, shutdown, nil
}

// localPlatform derives the raw platform signal the role resolver checks the
// declared device class against.
func localPlatform() role.Platform {
	return role.Platform{
		OS:       runtime.GOOS,
		Handheld: runtime.GOOS == "android" || runtime.GOOS == "ios",
	}
}

// waitSynced blocks until every channel finished its initial replay, the
// context is done, or the deadline passes.
func waitSynced(ctx context.Context, session *cashbook.Session, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for !session.Synced() {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-session.Updates():
		}
	}
	return true
}
