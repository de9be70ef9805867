package replication

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/store"
	"github.com/IndikaEK123456/Cash-Book-5/store/memory"
)

// note is the entry type the channel tests replicate.
type note struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func noteCodec() Codec[note] {
	return NewJSONCodec(func(n note) error {
		if n.ID == "" {
			return fmt.Errorf("note without id")
		}
		return nil
	})
}

func noteID(n note) string { return n.ID }

func alwaysWrite() bool { return true }
func neverWrite() bool  { return false }

// fakeStore delivers hand-ordered notifications and records every write, so
// tests control exactly what the substrate does.
type fakeStore struct {
	mu   sync.Mutex
	puts []fakePut
	subs []*fakeSub
}

type fakePut struct {
	path  string
	value []byte
}

type fakeSub struct {
	events chan store.Notification
	once   sync.Once
}

func (s *fakeSub) Events() <-chan store.Notification { return s.events }

func (s *fakeSub) Cancel() {
	s.once.Do(func() { close(s.events) })
}

func (f *fakeStore) Put(_ context.Context, path store.Path, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, fakePut{path: path.String(), value: append([]byte(nil), value...)})
	return nil
}

func (f *fakeStore) Subscribe(context.Context, store.Path) (store.Subscription, error) {
	sub := &fakeSub{events: make(chan store.Notification, 64)}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeStore) deliver(n store.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		sub.events <- n
	}
}

func (f *fakeStore) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

func testPath(t *testing.T, segments ...string) store.Path {
	t.Helper()
	path, err := store.NewPath(segments...)
	if err != nil {
		t.Fatalf("NewPath(%v) error = %v", segments, err)
	}
	return path
}

func openNotes(t *testing.T, st store.Store, canWrite func() bool) *Collection[note] {
	t.Helper()
	c, err := OpenCollection(context.Background(), st, testPath(t, "app", "s1", "notes"), noteCodec(), noteID, canWrite, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenCollection() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func encodeNote(t *testing.T, n note) []byte {
	t.Helper()
	data, err := noteCodec().Encode(n)
	if err != nil {
		t.Fatalf("Encode(%v) error = %v", n, err)
	}
	return data
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCollectionTombstoneWinsOverLateCreate(t *testing.T) {
	st := &fakeStore{}
	c := openNotes(t, st, alwaysWrite)

	// The tombstone for x arrives before x was ever seen, then the creation
	// shows up out of order. x must stay absent.
	st.deliver(store.Notification{Key: "x"})
	st.deliver(store.Notification{Key: "x", Value: encodeNote(t, note{ID: "x", Text: "late"})})
	st.deliver(store.Notification{Key: "y", Value: encodeNote(t, note{ID: "y", Text: "ok"})})

	waitFor(t, "y to arrive", func() bool { _, ok := c.Get("y"); return ok })

	if _, ok := c.Get("x"); ok {
		t.Errorf("Get(x) present after tombstone-then-create, want absent")
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestCollectionDuplicateDeliveriesAreIdempotent(t *testing.T) {
	st := &fakeStore{}
	c := openNotes(t, st, alwaysWrite)

	created := encodeNote(t, note{ID: "x", Text: "v1"})
	st.deliver(store.Notification{Key: "x", Value: created})
	st.deliver(store.Notification{Key: "x", Value: created})
	st.deliver(store.Notification{Key: "m1", Value: encodeNote(t, note{ID: "m1"})})
	waitFor(t, "first marker", func() bool { _, ok := c.Get("m1"); return ok })

	if got := c.Len(); got != 2 {
		t.Errorf("Len() after duplicate create = %d, want 2", got)
	}

	st.deliver(store.Notification{Key: "x"})
	st.deliver(store.Notification{Key: "x"})
	st.deliver(store.Notification{Key: "m2", Value: encodeNote(t, note{ID: "m2"})})
	waitFor(t, "second marker", func() bool { _, ok := c.Get("m2"); return ok })

	if _, ok := c.Get("x"); ok {
		t.Errorf("Get(x) present after duplicate tombstones, want absent")
	}

	// A replayed create after the tombstone must not resurrect the entry.
	st.deliver(store.Notification{Key: "x", Value: created})
	st.deliver(store.Notification{Key: "m3", Value: encodeNote(t, note{ID: "m3"})})
	waitFor(t, "third marker", func() bool { _, ok := c.Get("m3"); return ok })

	if _, ok := c.Get("x"); ok {
		t.Errorf("Get(x) resurrected by replayed create, want absent")
	}
	if got := c.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
}

func TestCollectionSkipsMalformedPayloads(t *testing.T) {
	st := &fakeStore{}
	c := openNotes(t, st, alwaysWrite)

	st.deliver(store.Notification{Key: "bad", Value: []byte("{not json")})
	st.deliver(store.Notification{Key: "empty", Value: encodeNote(t, note{Text: "no id"})})
	st.deliver(store.Notification{Key: "other", Value: encodeNote(t, note{ID: "mismatch"})})
	st.deliver(store.Notification{Key: "good", Value: encodeNote(t, note{ID: "good"})})

	waitFor(t, "good entry", func() bool { _, ok := c.Get("good"); return ok })

	// One corrupt write must not block the rest of the collection.
	if got := c.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	for _, id := range []string{"bad", "empty", "other", "mismatch"} {
		if _, ok := c.Get(id); ok {
			t.Errorf("Get(%s) present, want skipped", id)
		}
	}
}

func TestCollectionCaughtUpOnSync(t *testing.T) {
	st := memory.New(nil)
	seed := testPath(t, "app", "s1", "notes").Child("a")
	if err := st.Put(context.Background(), seed, encodeNote(t, note{ID: "a"})); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	c := openNotes(t, st, alwaysWrite)

	select {
	case <-c.CaughtUp():
	case <-time.After(2 * time.Second):
		t.Fatalf("CaughtUp() not closed after initial replay")
	}
	if !c.Synced() {
		t.Errorf("Synced() = false, want true")
	}
	if _, ok := c.Get("a"); !ok {
		t.Errorf("Get(a) absent after replay, want present")
	}
}

func TestCollectionReadOnlyReplicaNeverWrites(t *testing.T) {
	st := &fakeStore{}
	c := openNotes(t, st, neverWrite)

	if err := c.Put(context.Background(), note{ID: "x"}); err != nil {
		t.Fatalf("Put() error = %v, want silent no-op", err)
	}
	if err := c.Remove(context.Background(), "x"); err != nil {
		t.Fatalf("Remove() error = %v, want silent no-op", err)
	}

	if got := st.putCount(); got != 0 {
		t.Errorf("store writes = %d, want 0", got)
	}
	if got := c.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestCollectionWriterReadsItsOwnWrites(t *testing.T) {
	st := memory.New(nil)
	c := openNotes(t, st, alwaysWrite)

	if err := c.Put(context.Background(), note{ID: "x", Text: "mine"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	// Visible immediately, before the store echoes the write back.
	if got, ok := c.Get("x"); !ok || got.Text != "mine" {
		t.Errorf("Get(x) = %+v, %v immediately after Put, want mine, true", got, ok)
	}

	if err := c.Remove(context.Background(), "x"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := c.Get("x"); ok {
		t.Errorf("Get(x) present immediately after Remove, want absent")
	}
}

func TestCollectionPutRefusesTombstonedID(t *testing.T) {
	st := &fakeStore{}
	c := openNotes(t, st, alwaysWrite)

	if err := c.Put(context.Background(), note{ID: "x"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Remove(context.Background(), "x"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	writesBefore := st.putCount()

	// Ids are never reused after deletion; a put against a tombstoned id is
	// dropped without a store write.
	if err := c.Put(context.Background(), note{ID: "x", Text: "again"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got := st.putCount(); got != writesBefore {
		t.Errorf("store writes = %d, want %d", got, writesBefore)
	}
	if _, ok := c.Get("x"); ok {
		t.Errorf("Get(x) present after put on tombstoned id, want absent")
	}
}

func TestCollectionConvergesAcrossReplicas(t *testing.T) {
	st := memory.New(nil)
	editor := openNotes(t, st, alwaysWrite)
	viewer := openNotes(t, st, neverWrite)

	ctx := context.Background()
	if err := editor.Put(ctx, note{ID: "x", Text: "one"}); err != nil {
		t.Fatalf("Put(x) error = %v", err)
	}
	if err := editor.Put(ctx, note{ID: "y", Text: "two"}); err != nil {
		t.Fatalf("Put(y) error = %v", err)
	}
	waitFor(t, "viewer to see both entries", func() bool { return viewer.Len() == 2 })

	// Removing twice leaves the same state as removing once, on both sides.
	if err := editor.Remove(ctx, "x"); err != nil {
		t.Fatalf("Remove(x) error = %v", err)
	}
	if err := editor.Remove(ctx, "x"); err != nil {
		t.Fatalf("Remove(x) again error = %v", err)
	}
	waitFor(t, "viewer to drop x", func() bool { _, ok := viewer.Get("x"); return !ok })

	for name, c := range map[string]*Collection[note]{"editor": editor, "viewer": viewer} {
		live := c.Live()
		if len(live) != 1 || live[0].ID != "y" {
			t.Errorf("%s Live() = %+v, want [y]", name, live)
		}
	}
}

func TestCollectionLiveKeepsFirstSeenOrder(t *testing.T) {
	st := &fakeStore{}
	c := openNotes(t, st, alwaysWrite)

	for _, id := range []string{"c", "a", "b"} {
		st.deliver(store.Notification{Key: id, Value: encodeNote(t, note{ID: id})})
	}
	waitFor(t, "all three entries", func() bool { return c.Len() == 3 })

	got := c.Live()
	want := []string{"c", "a", "b"}
	for i, n := range got {
		if n.ID != want[i] {
			t.Fatalf("Live()[%d] = %s, want %s", i, n.ID, want[i])
		}
	}

	st.deliver(store.Notification{Key: "a"})
	st.deliver(store.Notification{Key: "d", Value: encodeNote(t, note{ID: "d"})})
	waitFor(t, "d to arrive", func() bool { _, ok := c.Get("d"); return ok })

	got = c.Live()
	want = []string{"c", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("Live() = %d entries, want %d", len(got), len(want))
	}
	for i, n := range got {
		if n.ID != want[i] {
			t.Errorf("Live()[%d] = %s, want %s", i, n.ID, want[i])
		}
	}
}

func TestCollectionUpdatesSignal(t *testing.T) {
	st := &fakeStore{}
	c := openNotes(t, st, alwaysWrite)

	st.deliver(store.Notification{Key: "x", Value: encodeNote(t, note{ID: "x"})})

	select {
	case <-c.Updates():
	case <-time.After(2 * time.Second):
		t.Fatalf("Updates() silent after delivery")
	}
}
