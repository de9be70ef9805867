package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/IndikaEK123456/Cash-Book-5/store"
	"github.com/IndikaEK123456/Cash-Book-5/store/firestore"
	"github.com/IndikaEK123456/Cash-Book-5/store/kafka"
	"github.com/IndikaEK123456/Cash-Book-5/store/memory"
	"github.com/IndikaEK123456/Cash-Book-5/store/mongodb"
)

// OpenStore materializes the configured sync backend. The returned closer
// releases the backend's connections; for the memory backend it is a no-op.
func OpenStore(ctx context.Context, cfg *Config, logger *zap.Logger) (store.Store, func(context.Context) error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Sync.Backend {
	case BackendMemory:
		st := memory.New(logger.Named("store.memory"))
		return st, func(context.Context) error { return nil }, nil

	case BackendFirestore:
		st, err := firestore.New(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsPath, logger.Named("store.firestore"))
		if err != nil {
			return nil, nil, fmt.Errorf("open firestore backend: %w", err)
		}
		return st, func(context.Context) error { return st.Close() }, nil

	case BackendMongoDB:
		st, err := mongodb.New(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, cfg.MongoDB.Collection, logger.Named("store.mongodb"))
		if err != nil {
			return nil, nil, fmt.Errorf("open mongodb backend: %w", err)
		}
		return st, st.Close, nil

	case BackendKafka:
		st, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Named("store.kafka"))
		if err != nil {
			return nil, nil, fmt.Errorf("open kafka backend: %w", err)
		}
		return st, func(context.Context) error { return st.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown sync backend %q", cfg.Sync.Backend)
	}
}
