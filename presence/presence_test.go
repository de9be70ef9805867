package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/IndikaEK123456/Cash-Book-5/store"
	"github.com/IndikaEK123456/Cash-Book-5/store/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// writeSink satisfies store.Store for the publisher side only.
type writeSink struct {
	mu   sync.Mutex
	puts [][]byte
}

func (s *writeSink) Put(_ context.Context, _ store.Path, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, append([]byte(nil), value...))
	return nil
}

func (s *writeSink) Subscribe(context.Context, store.Path) (store.Subscription, error) {
	return nil, fmt.Errorf("writeSink does not subscribe")
}

func (s *writeSink) payloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.puts...)
}

func presencePath(t *testing.T) store.Path {
	t.Helper()
	p, err := store.NewPath("app", "s1", "meta", "presence")
	if err != nil {
		t.Fatalf("NewPath() error = %v", err)
	}
	return p
}

func TestHeartbeatTimestampsStrictlyIncrease(t *testing.T) {
	sink := &writeSink{}
	clock := newFakeClock() // frozen: every publish sees the same wall time
	h := NewHeartbeat(sink, presencePath(t), "laptop", time.Second, clock.now, nil)

	for i := 0; i < 3; i++ {
		h.publish()
	}

	payloads := sink.payloads()
	if len(payloads) != 3 {
		t.Fatalf("writes = %d, want 3", len(payloads))
	}
	var last int64
	for i, data := range payloads {
		beat, err := DecodeBeat(data)
		if err != nil {
			t.Fatalf("DecodeBeat(#%d) error = %v", i, err)
		}
		if beat.TS <= last {
			t.Errorf("beat[%d].TS = %d, want > %d", i, beat.TS, last)
		}
		if beat.Device != "laptop" {
			t.Errorf("beat[%d].Device = %q, want laptop", i, beat.Device)
		}
		last = beat.TS
	}
}

func TestHeartbeatStartPublishesImmediately(t *testing.T) {
	sink := &writeSink{}
	h := NewHeartbeat(sink, presencePath(t), "laptop", time.Minute, nil, nil)

	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	if got := len(sink.payloads()); got != 1 {
		t.Errorf("writes right after Start() = %d, want 1", got)
	}
}

func TestMonitorActivityDecays(t *testing.T) {
	st := memory.New(nil)
	clock := newFakeClock()
	path := presencePath(t)
	interval := time.Second

	m, err := NewMonitor(context.Background(), st, path, interval, clock.now, nil)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	defer m.Close()

	if m.Active() {
		t.Errorf("Active() = true before any beat, want false")
	}

	putBeat(t, st, path, Beat{TS: 1000, Device: "laptop"})
	waitActive(t, m, true)

	// Within two intervals the peer still counts as present.
	clock.advance(1500 * time.Millisecond)
	if !m.Active() {
		t.Errorf("Active() = false after 1.5 intervals, want true")
	}

	// Beyond two intervals the signal decays with no further event.
	clock.advance(time.Second)
	if m.Active() {
		t.Errorf("Active() = true after 2.5 intervals, want false")
	}
}

func TestMonitorIgnoresStaleBeats(t *testing.T) {
	st := memory.New(nil)
	clock := newFakeClock()
	path := presencePath(t)

	m, err := NewMonitor(context.Background(), st, path, time.Second, clock.now, nil)
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	defer m.Close()

	putBeat(t, st, path, Beat{TS: 100, Device: "laptop"})
	waitActive(t, m, true)

	clock.advance(5 * time.Second)
	if m.Active() {
		t.Fatalf("Active() = true after decay window, want false")
	}

	// A replayed older beat must not refresh liveness. Give the mailbox time
	// to drain before asserting nothing changed.
	putBeat(t, st, path, Beat{TS: 50, Device: "laptop"})
	time.Sleep(50 * time.Millisecond)
	if m.Active() {
		t.Errorf("Active() = true after stale beat, want false")
	}
	if got := m.LastBeat(); got != 100 {
		t.Errorf("LastBeat() = %d, want 100 (stale beat applied)", got)
	}

	putBeat(t, st, path, Beat{TS: 200, Device: "laptop"})
	waitActive(t, m, true)
	if got := m.LastBeat(); got != 200 {
		t.Errorf("LastBeat() = %d, want 200", got)
	}
}

func putBeat(t *testing.T, st store.Store, path store.Path, beat Beat) {
	t.Helper()
	data, err := EncodeBeat(beat)
	if err != nil {
		t.Fatalf("EncodeBeat() error = %v", err)
	}
	if err := st.Put(context.Background(), path, data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}

func waitActive(t *testing.T, m *Monitor, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Active() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Active() never became %v", want)
}

