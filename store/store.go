// Package store defines the contract the ledger engine expects from an
// eventually-consistent replicated key-value substrate. The engine only ever
// talks to the substrate through this interface: point writes addressed by a
// Path, and subscriptions that stream every past and future write under a
// Path. The substrate's wire protocol, durability and retry behaviour are its
// own concern; writes are fire-and-forget from the engine's point of view.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Tombstone is the sentinel payload written in place of a deleted key. A nil
// or empty value and Tombstone are interchangeable on the wire; backends that
// cannot represent nil payloads directly map it onto their own deletion
// marker.
var Tombstone []byte

// IsTombstone reports whether a payload is the deletion sentinel.
func IsTombstone(value []byte) bool {
	return len(value) == 0
}

// Path addresses one key in the substrate as a sequence of segments, e.g.
// (namespace, sessionID, collection, entryID). A Path with a trailing
// collection segment addresses the whole collection.
type Path []string

// NewPath validates the segments and returns them as a Path. Segments must be
// non-empty and must not contain '/', which is reserved as the join
// separator.
func NewPath(segments ...string) (Path, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("path needs at least one segment")
	}
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("path segment must not be empty")
		}
		if strings.Contains(s, "/") {
			return nil, fmt.Errorf("path segment %q must not contain '/'", s)
		}
	}
	return Path(segments), nil
}

// Child returns the path extended by one segment.
func (p Path) Child(segment string) Path {
	child := make(Path, 0, len(p)+1)
	child = append(child, p...)
	return append(child, segment)
}

// Key returns the last segment, the key the path addresses.
func (p Path) Key() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the path without its last segment, or nil for a root path.
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1]
}

// String joins the segments with '/'.
func (p Path) String() string {
	return strings.Join(p, "/")
}

// HasPrefix reports whether p lives under (or is) prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, s := range prefix {
		if p[i] != s {
			return false
		}
	}
	return true
}

// Notification is one delivered write. Key is the last segment of the written
// path (the entry id for collection subscriptions, the leaf name otherwise).
// A tombstone Value signals logical absence of the key. Sync marks the end of
// the initial replay: every write the backend knew of at subscribe time has
// been delivered, and local state assembled from the stream may be treated as
// caught up. Delivery is at-least-once in arrival order; no causal or global
// order is promised across keys.
type Notification struct {
	Key   string
	Value []byte
	Sync  bool
}

// Subscription is a live stream of notifications for one path. Cancel is safe
// to call any number of times and eventually closes the Events channel.
type Subscription interface {
	Events() <-chan Notification
	Cancel()
}

// Store is the replicated substrate as consumed by the engine.
type Store interface {
	// Put writes value at path. An empty value writes the tombstone. The
	// write is asynchronous: a nil error means the backend accepted it, not
	// that peers have seen it.
	Put(ctx context.Context, path Path, value []byte) error

	// Subscribe streams every write under path, past then future. For a
	// collection path it fans out one notification per child key; for a leaf
	// path it delivers that key's writes. One Sync notification separates
	// replay from live traffic.
	Subscribe(ctx context.Context, path Path) (Subscription, error)
}
