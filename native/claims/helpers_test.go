package claims

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"airdrop/crypto"
	"airdrop/storage"
)

func testAddress(fill byte) string {
	var key crypto.PublicKey
	for i := range key {
		key[i] = fill
	}
	return key.String()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T, sink storage.Sink, clock *fixedClock, rows ...string) *Store {
	t.Helper()
	store, err := NewStore(Options{
		Decimals: 9,
		Sink:     sink,
		Journal:  storage.NewMemJournal(),
		Logger:   discardLogger(),
		Now:      clock.Now,
	})
	require.NoError(t, err)
	source := "wallet_address,claim_amount\n" + strings.Join(rows, "\n")
	_, err = store.Load(context.Background(), strings.NewReader(source))
	require.NoError(t, err)
	return store
}
