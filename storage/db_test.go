package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func journalBackends(t *testing.T) map[string]Journal {
	t.Helper()
	dir := t.TempDir()

	level, err := NewLevelDBJournal(filepath.Join(dir, "journal-leveldb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = level.Close() })

	boltJournal, err := NewBoltJournal(filepath.Join(dir, "journal.db"), &bolt.Options{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = boltJournal.Close() })

	return map[string]Journal{
		"memory":  NewMemJournal(),
		"leveldb": level,
		"bolt":    boltJournal,
	}
}

func TestJournalHistoryIsOrderedAndScoped(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	for name, journal := range journalBackends(t) {
		journal := journal
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			events := []Event{
				{ClaimID: "walletA", From: "available", To: "reserved", Operation: "reserve", ReservationID: "r1", At: base},
				{ClaimID: "walletB", From: "available", To: "reserved", Operation: "reserve", At: base.Add(time.Second)},
				{ClaimID: "walletA", From: "reserved", To: "available", Operation: "release", ReservationID: "r1", At: base.Add(2 * time.Second)},
				{ClaimID: "walletA", From: "available", To: "reserved", Operation: "reserve", ReservationID: "r2", At: base.Add(3 * time.Second)},
				// Same timestamp as the previous event: the sequence keeps both.
				{ClaimID: "walletA", From: "reserved", To: "consumed", Operation: "confirm", ReservationID: "r2", At: base.Add(3 * time.Second)},
			}
			for _, event := range events {
				require.NoError(t, journal.Append(ctx, event))
			}

			history, err := journal.History(ctx, "walletA")
			require.NoError(t, err)
			require.Len(t, history, 4)
			require.Equal(t, "reserve", history[0].Operation)
			require.Equal(t, "release", history[1].Operation)
			require.Equal(t, "r2", history[2].ReservationID)
			require.Equal(t, "consumed", history[3].To)
			require.True(t, history[0].At.Equal(base))

			other, err := journal.History(ctx, "walletB")
			require.NoError(t, err)
			require.Len(t, other, 1)

			none, err := journal.History(ctx, "walletC")
			require.NoError(t, err)
			require.Empty(t, none)
		})
	}
}

func TestJournalRejectsInvalidClaimID(t *testing.T) {
	for name, journal := range journalBackends(t) {
		journal := journal
		t.Run(name, func(t *testing.T) {
			require.Error(t, journal.Append(context.Background(), Event{ClaimID: ""}))
			require.Error(t, journal.Append(context.Background(), Event{ClaimID: "a/b"}))
		})
	}
}

func TestLevelDBJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	journal, err := NewLevelDBJournal(path)
	require.NoError(t, err)
	at := time.Unix(1_700_000_100, 0).UTC()
	require.NoError(t, journal.Append(context.Background(), Event{ClaimID: "walletA", Operation: "reserve", At: at}))
	require.NoError(t, journal.Close())

	reopened, err := NewLevelDBJournal(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	history, err := reopened.History(context.Background(), "walletA")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "reserve", history[0].Operation)
}
