// Package firestore adapts Cloud Firestore to the replicated store contract.
// Path segments map onto alternating collection and document references, so
// (namespace, session, collection, id) becomes
// namespace/session/collection/id. Writes set a small wrapper document;
// tombstones are wrapper documents flagged deleted, so the residual marker
// survives the way the contract expects. Subscriptions ride Firestore's
// snapshot listeners, which replay current state before streaming changes.
package firestore

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/IndikaEK123456/Cash-Book-5/store"
)

// Wrapper document fields.
const (
	fieldValue   = "v"
	fieldDeleted = "t"
)

// Store is a Firestore-backed replicated store.
type Store struct {
	client *firestore.Client
	logger *zap.Logger
}

// New connects a Firestore-backed store for the given project. Credentials
// resolve the usual way (explicit file, then application default).
func New(ctx context.Context, projectID, credentialsPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts []option.ClientOption
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect firestore: %w", err)
	}
	return &Store{client: client, logger: logger}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Put writes value as a wrapper document at path. A tombstone writes the
// deleted flag instead of removing the document.
func (s *Store) Put(ctx context.Context, path store.Path, value []byte) error {
	doc, err := s.docRef(path)
	if err != nil {
		return err
	}
	data := map[string]interface{}{fieldValue: string(value), fieldDeleted: false}
	if store.IsTombstone(value) {
		data = map[string]interface{}{fieldValue: "", fieldDeleted: true}
	}
	if _, err := doc.Set(ctx, data); err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// Subscribe streams writes under path. An even number of segments addresses a
// single document (a leaf key); an odd number addresses a collection, where
// each child document fans out its own notifications.
func (s *Store) Subscribe(ctx context.Context, path store.Path) (store.Subscription, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("subscribe needs a non-empty path")
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		events: make(chan store.Notification, 16),
		cancel: cancel,
	}

	if len(path)%2 == 0 {
		doc, err := s.docRef(path)
		if err != nil {
			cancel()
			return nil, err
		}
		go sub.watchDocument(subCtx, doc, path.Key(), s.logger)
	} else {
		col, err := s.colRef(path)
		if err != nil {
			cancel()
			return nil, err
		}
		go sub.watchCollection(subCtx, col, s.logger)
	}
	return sub, nil
}

func (s *Store) docRef(path store.Path) (*firestore.DocumentRef, error) {
	if len(path) < 2 || len(path)%2 != 0 {
		return nil, fmt.Errorf("path %s does not address a document", path)
	}
	doc := s.client.Collection(path[0]).Doc(path[1])
	for i := 2; i < len(path); i += 2 {
		doc = doc.Collection(path[i]).Doc(path[i+1])
	}
	return doc, nil
}

func (s *Store) colRef(path store.Path) (*firestore.CollectionRef, error) {
	if len(path)%2 == 0 {
		return nil, fmt.Errorf("path %s does not address a collection", path)
	}
	col := s.client.Collection(path[0])
	for i := 1; i < len(path); i += 2 {
		col = col.Doc(path[i]).Collection(path[i+1])
	}
	return col, nil
}

type subscription struct {
	events     chan store.Notification
	cancel     context.CancelFunc
	cancelOnce sync.Once
}

func (s *subscription) Events() <-chan store.Notification { return s.events }

func (s *subscription) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

func (s *subscription) emit(ctx context.Context, n store.Notification) bool {
	select {
	case s.events <- n:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *subscription) watchCollection(ctx context.Context, col *firestore.CollectionRef, logger *zap.Logger) {
	defer close(s.events)
	it := col.Snapshots(ctx)
	defer it.Stop()

	synced := false
	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("collection listener stopped", zap.String("path", col.Path), zap.Error(err))
			}
			return
		}
		for _, change := range snap.Changes {
			n := store.Notification{Key: change.Doc.Ref.ID}
			if change.Kind != firestore.DocumentRemoved {
				n.Value = unwrap(change.Doc)
			}
			if !s.emit(ctx, n) {
				return
			}
		}
		// The first snapshot carries the full current state; everything after
		// it is live traffic.
		if !synced {
			synced = true
			if !s.emit(ctx, store.Notification{Sync: true}) {
				return
			}
		}
	}
}

func (s *subscription) watchDocument(ctx context.Context, doc *firestore.DocumentRef, key string, logger *zap.Logger) {
	defer close(s.events)
	it := doc.Snapshots(ctx)
	defer it.Stop()

	synced := false
	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("document listener stopped", zap.String("path", doc.Path), zap.Error(err))
			}
			return
		}
		if snap.Exists() {
			if !s.emit(ctx, store.Notification{Key: key, Value: unwrap(snap)}) {
				return
			}
		} else if synced {
			if !s.emit(ctx, store.Notification{Key: key}) {
				return
			}
		}
		if !synced {
			synced = true
			if !s.emit(ctx, store.Notification{Sync: true}) {
				return
			}
		}
	}
}

// unwrap extracts the payload from a wrapper document; deleted wrappers and
// malformed documents come back as the tombstone.
func unwrap(snap *firestore.DocumentSnapshot) []byte {
	data := snap.Data()
	if deleted, ok := data[fieldDeleted].(bool); ok && deleted {
		return store.Tombstone
	}
	value, ok := data[fieldValue].(string)
	if !ok {
		return store.Tombstone
	}
	return []byte(value)
}

var _ store.Store = (*Store)(nil)
