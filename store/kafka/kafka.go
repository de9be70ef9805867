// Package kafka adapts a compacted Kafka topic to the replicated store
// contract. The message key is the joined path and a nil message value is the
// tombstone, which is Kafka's own deletion convention under log compaction.
// The topic must be a single-partition compacted topic so one reader sees
// every key in a stable order; per-key ordering then comes for free.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/store"
)

// Store is a Kafka-backed replicated store.
type Store struct {
	brokers []string
	topic   string
	writer  *kafka.Writer
	logger  *zap.Logger
}

// New wires a Kafka-backed store on the given compacted topic.
func New(brokers []string, topic string, logger *zap.Logger) (*Store, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		brokers: brokers,
		topic:   topic,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		logger: logger,
	}, nil
}

// Close flushes and closes the producer.
func (s *Store) Close() error {
	return s.writer.Close()
}

// Put produces one message keyed by the joined path. Tombstones go out as
// nil-value messages so compaction eventually drops the key.
func (s *Store) Put(ctx context.Context, path store.Path, value []byte) error {
	if store.IsTombstone(value) {
		value = nil
	}
	msg := kafka.Message{Key: []byte(path.String()), Value: value}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// Subscribe replays the topic from the first offset and keeps following it,
// delivering only messages whose key is path or lives under it. The sync
// marker goes out once the reader has caught up with the high watermark.
func (s *Store) Subscribe(ctx context.Context, path store.Path) (store.Subscription, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("subscribe needs a non-empty path")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   s.brokers,
		Topic:     s.topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	if err := reader.SetOffset(kafka.FirstOffset); err != nil {
		reader.Close()
		return nil, fmt.Errorf("rewind %s: %w", s.topic, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		events: make(chan store.Notification, 16),
		cancel: func() {
			cancel()
			if err := reader.Close(); err != nil {
				s.logger.Debug("reader close failed", zap.Error(err))
			}
		},
	}
	go sub.run(subCtx, reader, path.String(), s.logger)
	return sub, nil
}

type subscription struct {
	events     chan store.Notification
	cancel     func()
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

func (s *subscription) run(ctx context.Context, reader *kafka.Reader, prefix string, logger *zap.Logger) {
	defer close(s.events)

	synced := false
	// An empty or fully-compacted topic never delivers a first message, so
	// the caught-up check has to run before the first blocking read too.
	if lag, err := reader.ReadLag(ctx); err == nil && lag == 0 {
		synced = true
		if !s.emit(ctx, store.Notification{Sync: true}) {
			return
		}
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				logger.Warn("reader stopped", zap.String("prefix", prefix), zap.Error(err))
			}
			return
		}

		key := string(msg.Key)
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			segments := strings.Split(key, "/")
			n := store.Notification{Key: segments[len(segments)-1], Value: msg.Value}
			if !s.emit(ctx, n) {
				return
			}
		}

		if !synced && reader.Lag() == 0 {
			synced = true
			if !s.emit(ctx, store.Notification{Sync: true}) {
				return
			}
		}
	}
}

var _ store.Store = (*Store)(nil)
