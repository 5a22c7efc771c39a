package history

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/types"
)

// HistoryFile is the store's filename at the device root
const HistoryFile = "ota_history.db"

// maxEventsPerKind caps each event ring so the store cannot grow
// unbounded on a small flash filesystem
const maxEventsPerKind = 100

// Event kinds tracked for the external scheduler's health decisions
const (
	KindCrash  = "crash"
	KindError  = "error"
	KindUpdate = "update"
)

var (
	bucketEvents    = []byte("events")
	bucketAttempts  = []byte("attempts")
	bucketRateLimit = []byte("rate_limit")

	keyLastCheck = []byte("last_check")
)

// Event is one health entry: a crash, an error, or a completed update
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// Store persists health events, attempt outcomes, and the rate-limit
// timestamp the external scheduler consults between runs.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the history store under root
func Open(root string) (*Store, error) {
	path := filepath.Join(root, HistoryFile)
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrIOFault, "open history store: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketAttempts, bucketRateLimit} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	return &Store{db: db}, nil
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordEvent appends a health event, pruning the oldest entries of the
// same kind beyond the cap.
func (s *Store) RecordEvent(kind, details string) error {
	ev := Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(eventKey(kind, seq), data); err != nil {
			return err
		}
		return pruneKind(b, kind)
	})
}

// eventKey orders events by insertion sequence within their kind
func eventKey(kind string, seq uint64) []byte {
	key := append([]byte(kind+"/"), make([]byte, 8)...)
	binary.BigEndian.PutUint64(key[len(key)-8:], seq)
	return key
}

// pruneKind removes the oldest events of kind beyond the cap
func pruneKind(b *bolt.Bucket, kind string) error {
	prefix := []byte(kind + "/")
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for len(keys) > maxEventsPerKind {
		if err := b.Delete(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

// Events returns all events of a kind, oldest first
func (s *Store) Events(kind string) ([]Event, error) {
	prefix := []byte(kind + "/")
	var out []Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				continue // skip a corrupt entry rather than fail the scan
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

// RecentCount counts events of a kind within the window ending now
func (s *Store) RecentCount(kind string, window time.Duration) (int, error) {
	events, err := s.Events(kind)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-window)
	count := 0
	for _, ev := range events {
		if ev.Timestamp.After(cutoff) {
			count++
		}
	}
	return count, nil
}

// RecordAttempt stores a completed update attempt
func (s *Store) RecordAttempt(rec types.AttemptRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// Attempts returns all recorded attempts, oldest first
func (s *Store) Attempts() ([]types.AttemptRecord, error) {
	var out []types.AttemptRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAttempts).ForEach(func(k, v []byte) error {
			var rec types.AttemptRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// SetLastCheck stamps the rate-limit record
func (s *Store) SetLastCheck(at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRateLimit).Put(keyLastCheck, []byte(at.UTC().Format(time.RFC3339Nano)))
	})
}

// LastCheck returns the last rate-limit stamp, zero if never set
func (s *Store) LastCheck() (time.Time, error) {
	var at time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRateLimit).Get(keyLastCheck)
		if v == nil {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return nil // treat a corrupt stamp as never checked
		}
		at = parsed
		return nil
	})
	return at, err
}
