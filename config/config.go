// Package config materializes the engine's environment configuration: which
// sync backend a process replicates over, how the session is addressed, the
// local device's declared class and the presence cadence. The engine itself
// has no surface of its own; the embedding application loads a Config and
// wires the pieces together.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/IndikaEK123456/Cash-Book-5/role"
)

// Backend names a replicated store implementation.
type Backend string

const (
	BackendMemory    Backend = "memory"
	BackendFirestore Backend = "firestore"
	BackendMongoDB   Backend = "mongodb"
	BackendKafka     Backend = "kafka"
)

// Config represents the full configuration surface of an embedding process.
type Config struct {
	Sync      SyncConfig
	Device    DeviceConfig
	Firestore FirestoreConfig
	MongoDB   MongoDBConfig
	Kafka     KafkaConfig
	Sheets    SheetsConfig
}

// SyncConfig addresses the shared session and selects the substrate.
type SyncConfig struct {
	Backend           Backend
	Namespace         string
	SessionID         string
	HeartbeatInterval time.Duration
}

// DeviceConfig declares what kind of device this process runs on and which
// class is the session's editor.
type DeviceConfig struct {
	Class  role.DeviceClass
	Editor role.DeviceClass
}

// FirestoreConfig holds settings for the Firestore backend.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsPath string
}

// MongoDBConfig holds settings for the MongoDB backend.
type MongoDBConfig struct {
	URI        string
	DBName     string
	Collection string
}

// KafkaConfig holds settings for the Kafka backend.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SheetsConfig configures the optional history export. Export is enabled by
// setting a spreadsheet id.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	HistoryRange    string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	heartbeat, err := time.ParseDuration(getenvWithDefault("HEARTBEAT_INTERVAL", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEARTBEAT_INTERVAL: %w", err)
	}

	cfg := &Config{
		Sync: SyncConfig{
			Backend:           Backend(getenvWithDefault("SYNC_BACKEND", string(BackendMemory))),
			Namespace:         getenvWithDefault("SYNC_NAMESPACE", "cashbook"),
			SessionID:         os.Getenv("SYNC_SESSION_ID"),
			HeartbeatInterval: heartbeat,
		},
		Device: DeviceConfig{
			Class:  role.DeviceClass(os.Getenv("DEVICE_CLASS")),
			Editor: role.DeviceClass(getenvWithDefault("EDITOR_DEVICE_CLASS", string(role.Laptop))),
		},
		Firestore: FirestoreConfig{
			ProjectID:       os.Getenv("FIRESTORE_PROJECT_ID"),
			CredentialsPath: os.Getenv("FIRESTORE_CREDENTIALS_PATH"),
		},
		MongoDB: MongoDBConfig{
			URI:        getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName:     getenvWithDefault("MONGODB_DB_NAME", "cashbook"),
			Collection: getenvWithDefault("MONGODB_COLLECTION", "ledger_keys"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getenvWithDefault("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenvWithDefault("KAFKA_TOPIC", "cashbook-ledger"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			HistoryRange:    getenvWithDefault("GOOGLE_SHEET_HISTORY_RANGE", "History!A:H"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated for the
// selected backend.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Sync.SessionID == "" {
		return errors.New("SYNC_SESSION_ID must be provided")
	}
	if strings.Contains(c.Sync.SessionID, "/") {
		return errors.New("SYNC_SESSION_ID must not contain '/'")
	}
	if c.Sync.Namespace == "" {
		return errors.New("SYNC_NAMESPACE must not be empty")
	}
	if c.Sync.HeartbeatInterval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}

	if _, err := role.ParseDeviceClass(string(c.Device.Class)); err != nil {
		return fmt.Errorf("DEVICE_CLASS: %w", err)
	}
	if _, err := role.ParseDeviceClass(string(c.Device.Editor)); err != nil {
		return fmt.Errorf("EDITOR_DEVICE_CLASS: %w", err)
	}

	switch c.Sync.Backend {
	case BackendMemory:
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			return errors.New("FIRESTORE_PROJECT_ID must be provided")
		}
	case BackendMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must be provided")
		}
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("KAFKA_BROKERS must be provided")
		}
		if c.Kafka.Topic == "" {
			return errors.New("KAFKA_TOPIC must be provided")
		}
	default:
		return fmt.Errorf("unknown SYNC_BACKEND %q", c.Sync.Backend)
	}

	if c.Sheets.SpreadsheetID != "" && c.Sheets.CredentialsPath == "" {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH must be provided when export is enabled")
	}

	return nil
}

// ExportEnabled reports whether the optional history export is configured.
func (c *Config) ExportEnabled() bool {
	return c.Sheets.SpreadsheetID != ""
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
