// Package replication turns point writes and subscription streams of the
// replicated store into typed local collection state. One channel serves one
// logical collection (or one leaf value) of one session. Deletion travels as
// a tombstone write; the channel keeps local state converged no matter how
// the store orders, repeats, or replays deliveries.
package replication

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/store"
)

// Collection replicates one keyed collection of entries. Local mutations go
// out as store writes; store notifications (local echoes included) fold into
// an id-keyed map. Tombstoned ids are remembered for the lifetime of the
// channel so that a deletion wins over any late or replayed create/update for
// the same id (entry ids are never reused once removed).
type Collection[T any] struct {
	path     store.Path
	st       store.Store
	codec    Codec[T]
	id       func(T) string
	canWrite func() bool
	logger   *zap.Logger

	mu      sync.RWMutex
	entries map[string]T
	order   []string
	dead    map[string]struct{}
	synced  bool

	caughtUp chan struct{}
	updates  chan struct{}
	sub      store.Subscription
	loopDone chan struct{}
}

// OpenCollection subscribes to path and starts folding notifications into
// local state. The returned channel is provisional until the store's sync
// marker arrives; callers gate "final" presentation on CaughtUp.
func OpenCollection[T any](ctx context.Context, st store.Store, path store.Path, codec Codec[T], id func(T) string, canWrite func() bool, logger *zap.Logger) (*Collection[T], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub, err := st.Subscribe(ctx, path)
	if err != nil {
		return nil, err
	}

	c := &Collection[T]{
		path:     path,
		st:       st,
		codec:    codec,
		id:       id,
		canWrite: canWrite,
		logger:   logger,
		entries:  make(map[string]T),
		dead:     make(map[string]struct{}),
		caughtUp: make(chan struct{}),
		updates:  make(chan struct{}, 1),
		sub:      sub,
		loopDone: make(chan struct{}),
	}
	go c.loop()
	return c, nil
}

// Put serializes the entry and writes it under its id. On a read-only replica
// this is a silent no-op, mirroring the passive nature of viewer devices. The
// local map is updated immediately so the writer reads its own writes; the
// store's echo of the same notification is an idempotent duplicate.
func (c *Collection[T]) Put(ctx context.Context, entry T) error {
	if !c.canWrite() {
		c.logger.Debug("put ignored on read-only replica", zap.String("path", c.path.String()))
		return nil
	}
	key := c.id(entry)
	data, err := c.codec.Encode(entry)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if _, gone := c.dead[key]; gone {
		c.mu.Unlock()
		c.logger.Warn("put ignored for tombstoned id", zap.String("id", key))
		return nil
	}
	c.upsertLocked(key, entry)
	c.mu.Unlock()
	c.notify()

	return c.st.Put(ctx, c.path.Child(key), data)
}

// Remove writes the tombstone for id. Removing an absent or already-removed
// id is a no-op with the same end state.
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	if !c.canWrite() {
		c.logger.Debug("remove ignored on read-only replica", zap.String("path", c.path.String()))
		return nil
	}

	c.mu.Lock()
	c.deleteLocked(id)
	c.mu.Unlock()
	c.notify()

	return c.st.Put(ctx, c.path.Child(id), store.Tombstone)
}

// Get returns the live entry for id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	return entry, ok
}

// Live returns the live entries in first-seen order on this replica.
func (c *Collection[T]) Live() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.entries))
	for _, id := range c.order {
		if entry, ok := c.entries[id]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of live entries.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Synced reports whether the initial replay has completed.
func (c *Collection[T]) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// CaughtUp is closed once the initial replay has completed.
func (c *Collection[T]) CaughtUp() <-chan struct{} { return c.caughtUp }

// Updates signals, coalesced, every change to local state.
func (c *Collection[T]) Updates() <-chan struct{} { return c.updates }

// Close cancels the subscription and waits for the fold loop to stop. No
// notification is applied after Close returns.
func (c *Collection[T]) Close() {
	c.sub.Cancel()
	<-c.loopDone
}

func (c *Collection[T]) loop() {
	defer close(c.loopDone)
	for n := range c.sub.Events() {
		c.apply(n)
	}
}

func (c *Collection[T]) apply(n store.Notification) {
	if n.Sync {
		c.mu.Lock()
		first := !c.synced
		c.synced = true
		c.mu.Unlock()
		if first {
			close(c.caughtUp)
		}
		c.notify()
		return
	}

	if store.IsTombstone(n.Value) {
		c.mu.Lock()
		c.deleteLocked(n.Key)
		c.mu.Unlock()
		c.notify()
		return
	}

	entry, err := c.codec.Decode(n.Value)
	if err != nil {
		c.logger.Warn("skip notification with malformed payload",
			zap.String("path", c.path.String()), zap.String("key", n.Key), zap.Error(err))
		return
	}
	if id := c.id(entry); id != n.Key {
		c.logger.Warn("skip notification whose payload id does not match its key",
			zap.String("key", n.Key), zap.String("payload_id", id))
		return
	}

	c.mu.Lock()
	if _, gone := c.dead[n.Key]; gone {
		c.mu.Unlock()
		c.logger.Debug("ignore update for tombstoned id", zap.String("id", n.Key))
		return
	}
	c.upsertLocked(n.Key, entry)
	c.mu.Unlock()
	c.notify()
}

func (c *Collection[T]) upsertLocked(id string, entry T) {
	if _, ok := c.entries[id]; !ok {
		c.order = append(c.order, id)
	}
	c.entries[id] = entry
}

func (c *Collection[T]) deleteLocked(id string) {
	delete(c.entries, id)
	c.dead[id] = struct{}{}
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Collection[T]) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
