package permstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"notary/internal/permission"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "perm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	entries := []permission.HistoryEntry{
		{TxHash: "0x1", WalletID: "w1", Destination: "0xdead", Value: decimal.RequireFromString("0.25"), Timestamp: base.Add(-2 * time.Hour)},
		{TxHash: "0x2", WalletID: "w1", Destination: "0xdead", Value: decimal.RequireFromString("0.1"), Timestamp: base.Add(-30 * time.Minute)},
		{TxHash: "0x3", WalletID: "w2", Destination: "0xbeef", Value: decimal.RequireFromString("1"), Timestamp: base.Add(-10 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, s.Record(ctx, e))
	}

	t.Run("since filters wallet and time, oldest first", func(t *testing.T) {
		got, err := s.Since(ctx, "w1", base.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "0x2", got[0].TxHash)
		assert.True(t, got[0].Value.Equal(decimal.RequireFromString("0.1")))

		all, err := s.Since(ctx, "w1", base.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "0x1", all[0].TxHash)
	})

	t.Run("prune removes old rows across wallets", func(t *testing.T) {
		require.NoError(t, s.Prune(ctx, base.Add(-time.Hour)))
		got, err := s.Since(ctx, "w1", base.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "0x2", got[0].TxHash)
	})
}

func TestDecisionRecords(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rec := DecisionRecord{
		DecisionID: "c3c0e8f0-1111-4222-8333-444455556666",
		ContentID:  "abcdef",
		Packet:     []byte(`{"decision_id":"c3c0e8f0-1111-4222-8333-444455556666"}`),
	}
	require.NoError(t, s.SaveDecisionRecord(ctx, rec))

	t.Run("load returns the stored record", func(t *testing.T) {
		got, err := s.DecisionRecord(ctx, rec.DecisionID)
		require.NoError(t, err)
		assert.Equal(t, rec.ContentID, got.ContentID)
		assert.JSONEq(t, string(rec.Packet), string(got.Packet))
	})

	t.Run("save is an upsert", func(t *testing.T) {
		updated := rec
		updated.ContentID = "123456"
		require.NoError(t, s.SaveDecisionRecord(ctx, updated))
		got, err := s.DecisionRecord(ctx, rec.DecisionID)
		require.NoError(t, err)
		assert.Equal(t, "123456", got.ContentID)
	})

	t.Run("missing id maps to the sentinel error", func(t *testing.T) {
		_, err := s.DecisionRecord(ctx, "unknown")
		assert.ErrorIs(t, err, ErrDecisionNotFound)
	})
}
