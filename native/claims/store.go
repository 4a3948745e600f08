package claims

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"airdrop/observability"
	"airdrop/storage"
)

const (
	opReserve = "reserve"
	opConfirm = "confirm"
	opRelease = "release"
	opExpire  = "expire"
)

// Options configures a Store.
type Options struct {
	// Decimals is the token precision used to parse and render amounts.
	Decimals uint8
	// Sink receives a full snapshot after every state change. Required.
	Sink storage.Sink
	// Journal optionally records every transition for operators.
	Journal storage.Journal
	Logger  *slog.Logger
	Now     func() time.Time
}

// Store owns every allocation entry. Each mutation and the snapshot write that follows
// it happen under one mutex, so a failed write can be undone before anyone observes it.
type Store struct {
	decimals uint8
	sink     storage.Sink
	journal  storage.Journal
	logger   *slog.Logger
	now      func() time.Time
	events   interface{ RecordTransition(from, to string) }

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewStore constructs an empty store.
func NewStore(opts Options) (*Store, error) {
	if opts.Sink == nil {
		return nil, fmt.Errorf("claims store: snapshot sink required")
	}
	if opts.Decimals > MaxDecimals {
		return nil, fmt.Errorf("claims store: decimals %d exceeds %d", opts.Decimals, MaxDecimals)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		decimals: opts.Decimals,
		sink:     opts.Sink,
		journal:  opts.Journal,
		logger:   logger.With(slog.String("component", "claims_store")),
		now:      now,
		events:   observability.Events(),
		entries:  make(map[string]*Entry),
	}, nil
}

// Decimals returns the token precision the store was configured with.
func (s *Store) Decimals() uint8 { return s.decimals }

// Restore loads the last persisted snapshot. It reports false when the sink has never
// been written, leaving the store empty.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	data, err := s.sink.Read(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read snapshot: %w", err)
	}
	entries, report, err := DecodeAllocations(bytes.NewReader(data), s.decimals, s.logger)
	if err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	s.mu.Lock()
	s.entries = indexEntries(entries)
	s.mu.Unlock()
	s.logger.Info("claims snapshot restored",
		slog.Int("entries", report.Loaded),
		slog.Int("skipped", report.Skipped))
	return true, nil
}

// Load replaces the store contents with the rows of an import source and persists the
// result. Rows that fail validation are skipped and counted in the report.
func (s *Store) Load(ctx context.Context, r io.Reader) (LoadReport, error) {
	entries, report, err := DecodeAllocations(r, s.decimals, s.logger)
	if err != nil {
		return report, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.entries
	s.entries = indexEntries(entries)
	if err := s.persistLocked(ctx); err != nil {
		s.entries = previous
		return report, err
	}
	s.logger.Info("allocation list loaded",
		slog.Int("rows", report.Rows),
		slog.Int("entries", report.Loaded),
		slog.Int("skipped", report.Skipped),
		slog.Int("duplicates", report.Duplicates))
	return report, nil
}

func indexEntries(entries []Entry) map[string]*Entry {
	out := make(map[string]*Entry, len(entries))
	for i := range entries {
		entry := entries[i]
		out[entry.CanonicalID] = &entry
	}
	return out
}

// Lookup returns a copy of the entry for a canonical identity.
func (s *Store) Lookup(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// TryReserve moves an available entry to reserved. The check and the write are one
// critical section: concurrent callers for the same identity see exactly one success.
func (s *Store) TryReserve(ctx context.Context, id string) (Entry, error) {
	return s.transition(ctx, id, opReserve, ErrNotEligible, func(entry *Entry) error {
		if entry.State != StateAvailable {
			return ErrAlreadyClaimed
		}
		entry.State = StateReserved
		entry.ReservedAt = s.now().UTC()
		entry.ReservationID = uuid.NewString()
		return nil
	})
}

// Confirm moves a reserved entry to consumed. Consumed is terminal.
func (s *Store) Confirm(ctx context.Context, id string) (Entry, error) {
	return s.transition(ctx, id, opConfirm, ErrNotReserved, func(entry *Entry) error {
		if entry.State != StateReserved {
			return ErrNotReserved
		}
		entry.State = StateConsumed
		return nil
	})
}

// Release returns a reserved entry to available.
func (s *Store) Release(ctx context.Context, id string) (Entry, error) {
	return s.transition(ctx, id, opRelease, ErrNotReserved, func(entry *Entry) error {
		if entry.State != StateReserved {
			return ErrNotReserved
		}
		release(entry)
		return nil
	})
}

// ReleaseReservation returns a reserved entry to available only while it still holds
// reservationID. A reservation replaced by a later request is left untouched.
func (s *Store) ReleaseReservation(ctx context.Context, id, reservationID string) (Entry, error) {
	return s.transition(ctx, id, opRelease, ErrNotReserved, func(entry *Entry) error {
		if entry.State != StateReserved || reservationID == "" || entry.ReservationID != reservationID {
			return ErrNotReserved
		}
		release(entry)
		return nil
	})
}

func release(entry *Entry) {
	entry.State = StateAvailable
	entry.ReservedAt = time.Time{}
	entry.ReservationID = ""
}

// ReleaseExpired returns every reservation made before cutoff to available and persists
// once. Reservations without a timestamp count as expired.
func (s *Store) ReleaseExpired(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := make(map[string]Entry)
	for id, entry := range s.entries {
		if entry.State != StateReserved {
			continue
		}
		if !entry.ReservedAt.IsZero() && !entry.ReservedAt.Before(cutoff) {
			continue
		}
		previous[id] = *entry
		release(entry)
	}
	if len(previous) == 0 {
		return nil, nil
	}
	if err := s.persistLocked(ctx); err != nil {
		for id, entry := range previous {
			*s.entries[id] = entry
		}
		return nil, err
	}
	released := make([]Entry, 0, len(previous))
	for id, before := range previous {
		after := *s.entries[id]
		s.record(ctx, opExpire, before, after)
		released = append(released, after)
	}
	sort.Slice(released, func(i, j int) bool { return released[i].CanonicalID < released[j].CanonicalID })
	return released, nil
}

func (s *Store) transition(ctx context.Context, id, op string, missing error, apply func(*Entry) error) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, missing
	}
	before := *entry
	if err := apply(entry); err != nil {
		return before, err
	}
	if err := s.persistLocked(ctx); err != nil {
		*entry = before
		return before, err
	}
	s.record(ctx, op, before, *entry)
	return *entry, nil
}

// record appends the transition to the journal. The snapshot is the source of truth, so
// journal failures are logged and dropped.
func (s *Store) record(ctx context.Context, op string, before, after Entry) {
	s.events.RecordTransition(before.State.String(), after.State.String())
	if s.journal == nil {
		return
	}
	reservationID := after.ReservationID
	if reservationID == "" {
		reservationID = before.ReservationID
	}
	event := storage.Event{
		ClaimID:       after.CanonicalID,
		From:          before.State.String(),
		To:            after.State.String(),
		Operation:     op,
		ReservationID: reservationID,
		At:            s.now().UTC(),
	}
	if err := s.journal.Append(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("journal append failed",
			slog.String("address", after.CanonicalID),
			slog.String("operation", op),
			slog.String("error", err.Error()))
	}
}

// Persist writes the full entry set to the sink.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := EncodeSnapshot(s.snapshotLocked(), s.decimals)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	// Sink writes ignore request cancellation; memory and the sink must not diverge.
	if err := s.sink.Write(context.WithoutCancel(ctx), data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// Snapshot returns copies of all entries ordered by canonical identity.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalID < out[j].CanonicalID })
	return out
}

// Stats counts entries per state.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats Stats
	for _, entry := range s.entries {
		switch entry.State {
		case StateAvailable:
			stats.Available++
		case StateReserved:
			stats.Reserved++
		case StateConsumed:
			stats.Consumed++
		}
	}
	return stats
}

// History returns the journaled transitions for a canonical identity.
func (s *Store) History(ctx context.Context, id string) ([]storage.Event, error) {
	if s.journal == nil {
		return []storage.Event{}, nil
	}
	return s.journal.History(ctx, id)
}
