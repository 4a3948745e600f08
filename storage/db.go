package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Event records a single claim state transition.
type Event struct {
	ClaimID       string    `json:"claimId"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Operation     string    `json:"operation"`
	ReservationID string    `json:"reservationId,omitempty"`
	At            time.Time `json:"at"`
}

// Journal is an append-only log of claim transitions kept for operators.
// This allows the service to use any backend (in-memory or persistent).
type Journal interface {
	Append(ctx context.Context, event Event) error
	History(ctx context.Context, claimID string) ([]Event, error)
	Close() error
}

// journalKey orders events per claim by time, then by a process-local sequence.
func journalKey(claimID string, at time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/%020d/%010d", claimID, at.UTC().UnixNano(), seq))
}

func journalPrefix(claimID string) []byte {
	return []byte(claimID + "/")
}

func validateEvent(event Event) error {
	if strings.TrimSpace(event.ClaimID) == "" {
		return fmt.Errorf("journal: claim id required")
	}
	if strings.Contains(event.ClaimID, "/") {
		return fmt.Errorf("journal: claim id %q contains separator", event.ClaimID)
	}
	return nil
}

// --- In-Memory Journal (for testing) ---

type MemJournal struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func NewMemJournal() *MemJournal {
	return &MemJournal{events: make(map[string][]Event)}
}

func (j *MemJournal) Append(_ context.Context, event Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events[event.ClaimID] = append(j.events[event.ClaimID], event)
	return nil
}

func (j *MemJournal) History(_ context.Context, claimID string) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	events := j.events[claimID]
	out := make([]Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(a, b int) bool { return out[a].At.Before(out[b].At) })
	return out, nil
}

// Close satisfies the Journal interface for MemJournal.
func (j *MemJournal) Close() error {
	// Nothing to close for an in-memory journal.
	return nil
}

// --- Persistent Journal ---

// LevelDBJournal is a persistent journal using LevelDB.
type LevelDBJournal struct {
	db  *leveldb.DB
	seq atomic.Uint64
}

// NewLevelDBJournal creates or opens a LevelDB database at the specified path.
func NewLevelDBJournal(path string) (*LevelDBJournal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb journal path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb journal path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb journal: %w", err)
	}
	return &LevelDBJournal{db: db}, nil
}

// Append writes the event under a time-ordered key.
func (j *LevelDBJournal) Append(_ context.Context, event Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode journal event: %w", err)
	}
	key := journalKey(event.ClaimID, event.At, j.seq.Add(1))
	if err := j.db.Put(key, encoded, nil); err != nil {
		return fmt.Errorf("record journal event: %w", err)
	}
	return nil
}

// History returns every event recorded for the claim in chronological order.
func (j *LevelDBJournal) History(ctx context.Context, claimID string) ([]Event, error) {
	iter := j.db.NewIterator(util.BytesPrefix(journalPrefix(claimID)), nil)
	defer iter.Release()

	events := make([]Event, 0)
	for iter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		var event Event
		if err := json.Unmarshal(iter.Value(), &event); err != nil {
			return nil, fmt.Errorf("decode journal event: %w", err)
		}
		events = append(events, event)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return events, nil
}

// Close closes the database connection.
func (j *LevelDBJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
