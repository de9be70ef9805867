package replication

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/store"
)

// Value replicates one leaf key holding a single record, such as the opening
// balance or the day-end marker. Unlike Collection it applies notifications
// strictly last-delivered-wins: a tombstone clears the value but a later
// write restores it, because leaf keys are legitimately reused across days.
type Value[T any] struct {
	path     store.Path
	st       store.Store
	codec    Codec[T]
	canWrite func() bool
	logger   *zap.Logger

	mu      sync.RWMutex
	current T
	present bool
	synced  bool

	caughtUp chan struct{}
	updates  chan struct{}
	sub      store.Subscription
	loopDone chan struct{}
}

// OpenValue subscribes to the leaf at path and starts folding notifications
// into local state.
func OpenValue[T any](ctx context.Context, st store.Store, path store.Path, codec Codec[T], canWrite func() bool, logger *zap.Logger) (*Value[T], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub, err := st.Subscribe(ctx, path)
	if err != nil {
		return nil, err
	}

	v := &Value[T]{
		path:     path,
		st:       st,
		codec:    codec,
		canWrite: canWrite,
		logger:   logger,
		caughtUp: make(chan struct{}),
		updates:  make(chan struct{}, 1),
		sub:      sub,
		loopDone: make(chan struct{}),
	}
	go v.loop()
	return v, nil
}

// Set replaces the value. Silent no-op on a read-only replica.
func (v *Value[T]) Set(ctx context.Context, value T) error {
	if !v.canWrite() {
		v.logger.Debug("set ignored on read-only replica", zap.String("path", v.path.String()))
		return nil
	}

	data, err := v.codec.Encode(value)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.current = value
	v.present = true
	v.mu.Unlock()
	v.notify()

	return v.st.Put(ctx, v.path, data)
}

// Clear tombstones the value. Silent no-op on a read-only replica.
func (v *Value[T]) Clear(ctx context.Context) error {
	if !v.canWrite() {
		v.logger.Debug("clear ignored on read-only replica", zap.String("path", v.path.String()))
		return nil
	}

	v.mu.Lock()
	var zero T
	v.current = zero
	v.present = false
	v.mu.Unlock()
	v.notify()

	return v.st.Put(ctx, v.path, store.Tombstone)
}

// Get returns the current value and whether one is present.
func (v *Value[T]) Get() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current, v.present
}

// Synced reports whether the initial replay has completed.
func (v *Value[T]) Synced() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.synced
}

// CaughtUp is closed once the initial replay has completed.
func (v *Value[T]) CaughtUp() <-chan struct{} { return v.caughtUp }

// Updates signals, coalesced, every change to local state.
func (v *Value[T]) Updates() <-chan struct{} { return v.updates }

// Close cancels the subscription and waits for the fold loop to stop.
func (v *Value[T]) Close() {
	v.sub.Cancel()
	<-v.loopDone
}

func (v *Value[T]) loop() {
	defer close(v.loopDone)
	for n := range v.sub.Events() {
		v.apply(n)
	}
}

func (v *Value[T]) apply(n store.Notification) {
	if n.Sync {
		v.mu.Lock()
		first := !v.synced
		v.synced = true
		v.mu.Unlock()
		if first {
			close(v.caughtUp)
		}
		v.notify()
		return
	}

	// Leaf subscriptions can still surface the key name; only the leaf's own
	// key belongs to this channel.
	if n.Key != v.path.Key() {
		return
	}

	if store.IsTombstone(n.Value) {
		v.mu.Lock()
		var zero T
		v.current = zero
		v.present = false
		v.mu.Unlock()
		v.notify()
		return
	}

	value, err := v.codec.Decode(n.Value)
	if err != nil {
		v.logger.Warn("skip notification with malformed payload",
			zap.String("path", v.path.String()), zap.Error(err))
		return
	}

	v.mu.Lock()
	v.current = value
	v.present = true
	v.mu.Unlock()
	v.notify()
}

func (v *Value[T]) notify() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}
