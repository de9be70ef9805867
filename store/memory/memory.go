// Package memory is an in-process implementation of the replicated store
// contract. It replicates nothing: it exists so the engine can run single
// device sessions and so tests have a substrate with the exact delivery
// semantics the contract describes (replay, sync marker, arrival order,
// tombstones retained as residual markers).
package memory

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/store"
)

// Store keeps the whole key space in a mutex-guarded map and fans every write
// out to matching subscriptions through per-subscription mailboxes, so a slow
// consumer never blocks a writer.
type Store struct {
	mu     sync.Mutex
	data   map[string][]byte
	paths  map[string]store.Path
	subs   map[int]*subscription
	nextID int
	logger *zap.Logger
}

// New creates an empty in-memory store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		data:   make(map[string][]byte),
		paths:  make(map[string]store.Path),
		subs:   make(map[int]*subscription),
		logger: logger,
	}
}

// Put stores value at path and notifies every subscription whose prefix
// covers it. Tombstones stay in the map as residual markers.
func (s *Store) Put(ctx context.Context, path store.Path, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := append([]byte(nil), value...)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := path.String()
	s.data[key] = stored
	s.paths[key] = path

	n := store.Notification{Key: path.Key(), Value: stored}
	for _, sub := range s.subs {
		if path.HasPrefix(sub.prefix) {
			sub.enqueue(n)
		}
	}
	return nil
}

// Subscribe replays the current state under path in sorted key order, emits
// the sync marker, then streams live writes until cancelled.
func (s *Store) Subscribe(ctx context.Context, path store.Path) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := newSubscription(path)
	id := s.nextID
	s.nextID++
	sub.onCancel = func() { s.drop(id) }

	var replay []string
	for key, p := range s.paths {
		if p.HasPrefix(path) {
			replay = append(replay, key)
		}
	}
	sort.Strings(replay)
	for _, key := range replay {
		sub.enqueue(store.Notification{Key: s.paths[key].Key(), Value: s.data[key]})
	}
	sub.enqueue(store.Notification{Sync: true})

	s.subs[id] = sub
	s.logger.Debug("subscription opened", zap.String("path", path.String()))
	return sub, nil
}

func (s *Store) drop(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// subscription buffers notifications in an unbounded mailbox drained by its
// own goroutine, preserving enqueue order.
type subscription struct {
	prefix   store.Path
	events   chan store.Notification
	done     chan struct{}
	onCancel func()

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []store.Notification
	closed bool

	cancelOnce sync.Once
}

func newSubscription(prefix store.Path) *subscription {
	sub := &subscription{
		prefix: prefix,
		events: make(chan store.Notification),
		done:   make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)
	go sub.drain()
	return sub
}

func (s *subscription) Events() <-chan store.Notification { return s.events }

// Cancel stops delivery and closes the events channel. Safe to call more than
// once.
func (s *subscription) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

func (s *subscription) enqueue(n store.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, n)
	s.cond.Signal()
}

func (s *subscription) drain() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.events)
			return
		}
		n := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- n:
		case <-s.done:
			close(s.events)
			return
		}
	}
}

var _ store.Store = (*Store)(nil)
