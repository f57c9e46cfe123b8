package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lychee-technology/crm"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SnapshotStore persists in-memory tables to a single SQLite table as JSON
// blobs, one bucket per entity. Tables snapshot after every successful mutation.
type SnapshotStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// OpenSnapshotStore opens (or creates) the snapshot database at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	if path == "" {
		path = "crm.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SnapshotStore{db: db, path: path}, nil
}

// Path returns the configured database path.
func (s *SnapshotStore) Path() string { return s.path }

// Close closes the database.
func (s *SnapshotStore) Close() error { return s.db.Close() }

func (s *SnapshotStore) load(bucket string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM state WHERE bucket = ?`, bucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", bucket, err)
	}
	return payload, true, nil
}

// save upserts the payload of bucket.
func (s *SnapshotStore) save(bucket string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
		return fmt.Errorf("upsert %s: %w", bucket, err)
	}
	return nil
}

type snapshotPayload[T any] struct {
	HighWater int64 `json:"highWater"`
	Records   []T   `json:"records"`
}

// SnapshotTable is a MemoryTable whose state survives restarts. Every
// mutation is written to the store before it becomes visible, so a failed
// write leaves both copies unchanged.
type SnapshotTable[T any, P any] struct {
	*MemoryTable[T, P]
	store  *SnapshotStore
	bucket string
}

// NewSnapshotTable restores the entity's bucket from store, or seeds it from
// seed when the bucket does not exist yet.
func NewSnapshotTable[T any, P any](kind EntityKind[T, P], store *SnapshotStore, seed []T, latency crm.LatencyConfig) (*SnapshotTable[T, P], error) {
	t := &SnapshotTable[T, P]{
		MemoryTable: NewMemoryTable(kind, nil, latency),
		store:       store,
		bucket:      string(kind.Name),
	}
	raw, ok, err := store.load(t.bucket)
	if err != nil {
		return nil, err
	}
	if !ok {
		t.load(seed, 0)
		records, highWater := t.state()
		if err := t.persist(records, highWater); err != nil {
			return nil, err
		}
		zap.S().Infow("seeded snapshot bucket", "bucket", t.bucket, "records", len(seed))
	} else {
		var payload snapshotPayload[T]
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.bucket, err)
		}
		t.load(payload.Records, payload.HighWater)
	}
	t.commit = t.persist
	return t, nil
}

func (t *SnapshotTable[T, P]) persist(records []T, highWater int64) error {
	data, err := json.Marshal(snapshotPayload[T]{HighWater: highWater, Records: records})
	if err != nil {
		return crm.NewInternalError("failed to encode "+t.bucket+" snapshot", err)
	}
	if err := t.store.save(t.bucket, data); err != nil {
		return crm.NewInternalError("failed to persist "+t.bucket+" snapshot", err)
	}
	return nil
}
