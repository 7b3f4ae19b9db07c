package auditlog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, fmt.Sprintf("op-%d", i), "system", "w1", ""))
	}

	t.Run("newest first", func(t *testing.T) {
		got, err := s.Recent(ctx, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "op-4", got[0].Operation)
		assert.Equal(t, "op-2", got[2].Operation)
	})

	t.Run("limit clamps to a sane default", func(t *testing.T) {
		got, err := s.Recent(ctx, -1)
		require.NoError(t, err)
		assert.Len(t, got, 5)
		got, err = s.Recent(ctx, 10_000)
		require.NoError(t, err)
		assert.Len(t, got, 5)
	})
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Append(ctx, "kept", "system", "", ""))

	t.Run("past cutoff removes nothing recent", func(t *testing.T) {
		require.NoError(t, s.Prune(ctx, time.Now().Add(-time.Hour)))
		got, err := s.Recent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("future cutoff clears the trail", func(t *testing.T) {
		require.NoError(t, s.Prune(ctx, time.Now().Add(time.Hour)))
		got, err := s.Recent(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
