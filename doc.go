// Package cashbook keeps a shared daily cash ledger consistent across one
// editing device and any number of read-only viewers, on top of an
// eventually-consistent replicated key-value store.
//
// A Session is the handle to one shared book, scoped by an opaque sync id.
// Entries replicate as independently-addressable records: every local edit
// becomes a store write, every remote write folds into local state, and
// deletion travels as a tombstone. Derived totals are a pure function of the
// live entries and the opening balance. Closing a day snapshots the book into
// an immutable history record, clears the day's entries and rolls the balance
// forward; the close is resumable, since its steps replicate one by one with
// no transaction around them.
//
// The store itself is pluggable (store.Store); backends exist for an
// in-process memory substrate, Firestore, MongoDB change streams and a
// compacted Kafka topic.
package cashbook
