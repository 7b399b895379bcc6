package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "state", "history.db"))
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	runs := []Run{
		{SessionID: "a", Mode: "batch", Input: "talk.mp3", Output: "talk.txt", Model: "small", State: "done", Chars: 120, StartedAt: base, FinishedAt: base.Add(time.Minute)},
		{SessionID: "b", Mode: "live", Output: "transcript.txt", Model: "small", State: "cancelled", Partial: true, Chars: 12, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Second)},
		{SessionID: "c", Mode: "batch", Input: "bad.mkv", Model: "small", State: "failed", Error: "conversion failed", StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range runs {
		require.NoError(t, store.Record(ctx, r))
	}

	got, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].SessionID)
	require.Equal(t, "conversion failed", got[0].Error)
	require.Equal(t, "b", got[1].SessionID)
	require.True(t, got[1].Partial)
	require.Empty(t, got[1].Input)
	require.True(t, got[1].StartedAt.Equal(base.Add(time.Hour)))
}

func TestRecordReplacesSameSession(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	require.NoError(t, store.Record(ctx, Run{SessionID: "x", Mode: "live", State: "capturing", StartedAt: now, FinishedAt: now}))
	require.NoError(t, store.Record(ctx, Run{SessionID: "x", Mode: "live", State: "done", StartedAt: now, FinishedAt: now}))

	got, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "done", got[0].State)
}
