package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEvents = []byte("claim_events")

// BoltJournal persists claim events in a single bbolt bucket.
type BoltJournal struct {
	db  *bolt.DB
	seq atomic.Uint64
}

// NewBoltJournal opens (and migrates) the bbolt-backed journal.
func NewBoltJournal(path string, options *bolt.Options) (*BoltJournal, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltJournal{db: db}, nil
}

// Append stores the event under a time-ordered key.
func (j *BoltJournal) Append(_ context.Context, event Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode journal event: %w", err)
	}
	key := journalKey(event.ClaimID, event.At, j.seq.Add(1))
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(key, encoded)
	})
}

// History scans the claim's key prefix in order.
func (j *BoltJournal) History(ctx context.Context, claimID string) ([]Event, error) {
	prefix := journalPrefix(claimID)
	events := make([]Event, 0)
	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var event Event
			if err := json.Unmarshal(v, &event); err != nil {
				return fmt.Errorf("decode journal event: %w", err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Close releases the underlying Bolt database handle.
func (j *BoltJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
