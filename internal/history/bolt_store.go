package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	callsBucket = "calls"
	keyTimeSize = 8
)

// storedRecord is the on-disk value: the record plus its expiry.
type storedRecord struct {
	Record    Record `json:"record"`
	ExpiresAt int64  `json:"expires_at"`
}

// boltStore implements a Store backed by BoltDB. Keys sort by record time.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	seq             atomic.Uint64
	recordTTL       time.Duration
	cleanupInterval time.Duration
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(callsBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		recordTTL:       opts.RecordTTL,
		cleanupInterval: opts.CleanupInterval,
	}
	store.lastCleanup.Store(time.Now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Record stores rec with an expiry of At + TTL.
func (b *boltStore) Record(rec Record) error {
	if b == nil || b.db == nil {
		return nil
	}

	now := time.Now()
	if rec.At.IsZero() {
		rec.At = now
	}
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	value, err := json.Marshal(storedRecord{
		Record:    rec,
		ExpiresAt: rec.At.Add(b.recordTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(callsBucket))
		if bucket == nil {
			return fmt.Errorf("calls bucket missing")
		}
		return bucket.Put(b.recordKey(rec.At), value)
	})
}

// recordKey orders by time and disambiguates records sharing a timestamp.
func (b *boltStore) recordKey(at time.Time) []byte {
	key := make([]byte, keyTimeSize*2)
	binary.BigEndian.PutUint64(key[:keyTimeSize], uint64(at.UnixNano()))
	binary.BigEndian.PutUint64(key[keyTimeSize:], b.seq.Add(1))
	return key
}

// Recent returns up to limit unexpired records, newest first.
func (b *boltStore) Recent(limit int) ([]Record, error) {
	if b == nil || b.db == nil || limit <= 0 {
		return nil, nil
	}

	now := time.Now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return nil, err
	}

	out := make([]Record, 0, limit)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(callsBucket))
		if bucket == nil {
			return fmt.Errorf("calls bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil && len(out) < limit; k, v = cursor.Prev() {
			stored, ok := decodeRecord(v)
			if !ok || !time.Unix(stored.ExpiresAt, 0).After(now) {
				continue
			}
			out = append(out, stored.Record)
		}
		return nil
	})
	return out, err
}

// maybeCleanupExpired removes expired records on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(callsBucket))
		if bucket == nil {
			return fmt.Errorf("calls bucket missing")
		}

		// Deleting through the cursor skips the following key, so collect first.
		var expired [][]byte
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			stored, ok := decodeRecord(v)
			if !ok || !time.Unix(stored.ExpiresAt, 0).After(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

func decodeRecord(value []byte) (storedRecord, bool) {
	var stored storedRecord
	if err := json.Unmarshal(value, &stored); err != nil {
		return storedRecord{}, false
	}
	if stored.ExpiresAt <= 0 {
		return storedRecord{}, false
	}
	return stored, true
}
