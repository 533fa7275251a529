//go:build integration

package fraudlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/transferguard/internal/testutil"
)

func TestPostgresStore_RecordAndList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	first := entry("flog_a", "acc_1", base)
	second := entry("flog_b", "acc_1", base.Add(time.Minute))
	second.ModelScore = nil

	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, second))

	got, err := store.ListByAccount(ctx, "acc_1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "flog_b", got[0].ID)
	assert.Nil(t, got[0].ModelScore)
	assert.Equal(t, "flog_a", got[1].ID)
	require.NotNil(t, got[1].ModelScore)
	assert.InDelta(t, 0.4, *got[1].ModelScore, 1e-9)
	assert.True(t, got[1].Amount.Equal(first.Amount))
	assert.Equal(t, first.Reason, got[1].Reason)
}
