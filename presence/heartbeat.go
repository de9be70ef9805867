// Package presence publishes and observes the liveness signal of a session's
// editor. The editor writes a monotonically increasing timestamp to a
// well-known key on a fixed interval; any subscriber derives an advisory
// "peer active" flag that decays when the signal stops. Presence has no
// bearing on ledger correctness.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/store"
)

// DefaultInterval is the heartbeat period when the caller does not pick one.
const DefaultInterval = 3 * time.Second

// Beat is the replicated heartbeat payload.
type Beat struct {
	// TS is a strictly increasing timestamp in milliseconds. Monotonicity is
	// enforced by the publisher even across wall-clock stalls or steps.
	TS     int64  `json:"ts"`
	Device string `json:"device"`
}

// EncodeBeat serializes a heartbeat payload.
func EncodeBeat(b Beat) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode heartbeat: %w", err)
	}
	return data, nil
}

// DecodeBeat deserializes a heartbeat payload.
func DecodeBeat(data []byte) (Beat, error) {
	var b Beat
	if err := json.Unmarshal(data, &b); err != nil {
		return Beat{}, fmt.Errorf("decode heartbeat: %w", err)
	}
	return b, nil
}

// Heartbeat periodically writes the editor's liveness signal.
type Heartbeat struct {
	st       store.Store
	path     store.Path
	device   string
	interval time.Duration
	logger   *zap.Logger

	cron *cron.Cron
	now  func() time.Time

	mu     sync.Mutex
	lastTS int64
}

// NewHeartbeat wires a heartbeat publisher for the given presence key. An
// interval of zero selects DefaultInterval. now may be nil outside tests.
func NewHeartbeat(st store.Store, path store.Path, device string, interval time.Duration, now func() time.Time, logger *zap.Logger) *Heartbeat {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Heartbeat{
		st:       st,
		path:     path,
		device:   device,
		interval: interval,
		logger:   logger,
		cron:     cron.New(cron.WithSeconds()),
		now:      now,
	}
}

// Start publishes one beat immediately and then on every interval tick.
func (h *Heartbeat) Start() error {
	schedule := fmt.Sprintf("@every %s", h.interval)
	if _, err := h.cron.AddFunc(schedule, h.publish); err != nil {
		return fmt.Errorf("schedule heartbeat: %w", err)
	}
	h.publish()
	h.cron.Start()
	h.logger.Debug("heartbeat started", zap.Duration("interval", h.interval))
	return nil
}

// Stop halts the heartbeat. Safe to call more than once.
func (h *Heartbeat) Stop() {
	h.cron.Stop()
	h.logger.Debug("heartbeat stopped")
}

func (h *Heartbeat) publish() {
	h.mu.Lock()
	ts := h.now().UnixMilli()
	// Clocks stall and step backwards; the signal must keep increasing for
	// monitors that compare timestamps.
	if ts <= h.lastTS {
		ts = h.lastTS + 1
	}
	h.lastTS = ts
	h.mu.Unlock()

	data, err := EncodeBeat(Beat{TS: ts, Device: h.device})
	if err != nil {
		h.logger.Warn("skip heartbeat", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	defer cancel()
	if err := h.st.Put(ctx, h.path, data); err != nil {
		h.logger.Warn("heartbeat write failed", zap.Error(err))
	}
}
