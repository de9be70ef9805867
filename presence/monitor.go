package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/store"
)

// Monitor derives a "peer active" flag from the heartbeat key. The flag turns
// true on every fresh beat and decays to false once no beat has arrived for
// two heartbeat intervals.
type Monitor struct {
	path     store.Path
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	lastTS   int64
	lastSeen time.Time

	sub      store.Subscription
	loopDone chan struct{}
}

// NewMonitor subscribes to the presence key and starts tracking beats. The
// interval must match the publisher's; zero selects DefaultInterval. now may
// be nil outside tests.
func NewMonitor(ctx context.Context, st store.Store, path store.Path, interval time.Duration, now func() time.Time, logger *zap.Logger) (*Monitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	sub, err := st.Subscribe(ctx, path)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		path:     path,
		interval: interval,
		logger:   logger,
		now:      now,
		sub:      sub,
		loopDone: make(chan struct{}),
	}
	go m.loop()
	return m, nil
}

// Active reports whether a fresh beat has been seen within two intervals.
// Advisory connectivity state only.
func (m *Monitor) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastSeen.IsZero() {
		return false
	}
	return m.now().Sub(m.lastSeen) <= 2*m.interval
}

// LastBeat returns the latest accepted heartbeat timestamp in milliseconds,
// zero when none has arrived yet.
func (m *Monitor) LastBeat() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastTS
}

// Close stops tracking and waits for the observe loop to finish.
func (m *Monitor) Close() {
	m.sub.Cancel()
	<-m.loopDone
}

func (m *Monitor) loop() {
	defer close(m.loopDone)
	for n := range m.sub.Events() {
		m.observe(n)
	}
}

func (m *Monitor) observe(n store.Notification) {
	if n.Sync || store.IsTombstone(n.Value) {
		return
	}
	if n.Key != m.path.Key() {
		return
	}

	beat, err := DecodeBeat(n.Value)
	if err != nil {
		m.logger.Debug("skip malformed heartbeat", zap.Error(err))
		return
	}

	m.mu.Lock()
	// Replays and duplicates deliver stale beats; freshness is judged by the
	// publisher's timestamp, liveness by local arrival time.
	if beat.TS > m.lastTS {
		m.lastTS = beat.TS
		m.lastSeen = m.now()
	}
	m.mu.Unlock()
}
