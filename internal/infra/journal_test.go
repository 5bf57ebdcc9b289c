package infra

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageguard/pageguard/internal/domain"
)

func openTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "events.db")
	j, err := OpenJournal(path)
	require.NoError(t, err, "missing parent directories are created")
	t.Cleanup(func() { j.Close() })
	assert.Equal(t, path, j.Path())
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	sessionID := uuid.NewString()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	kinds := []domain.EventKind{
		domain.EventLifecycle,
		domain.EventSuppression,
		domain.EventDetection,
	}
	for i, kind := range kinds {
		require.NoError(t, j.Record(ctx, domain.ProtectionEvent{
			SessionID: sessionID,
			PageURL:   "https://example.test/",
			Kind:      kind,
			Detail:    string(kind),
			At:        base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest first.
	assert.Equal(t, domain.EventDetection, events[0].Kind)
	assert.Equal(t, domain.EventLifecycle, events[2].Kind)
	assert.Equal(t, sessionID, events[0].SessionID)
	assert.Equal(t, "https://example.test/", events[0].PageURL)
}

func TestJournal_RecentLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, domain.ProtectionEvent{
			SessionID: "s",
			PageURL:   "u",
			Kind:      domain.EventSuppression,
			Detail:    "keycombo F12",
		}))
	}

	events, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// Non-positive limit falls back to the default window.
	events, err = j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestJournal_RecordDefaultsTimestamp(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, domain.ProtectionEvent{
		SessionID: "s",
		PageURL:   "u",
		Kind:      domain.EventWatermark,
		Detail:    "caption regenerated",
	}))

	events, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].At.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), events[0].At, time.Minute)
}

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(context.Background(), domain.ProtectionEvent{
		SessionID: "s", PageURL: "u", Kind: domain.EventLifecycle, Detail: "session activated",
	}))
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	events, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "session activated", events[0].Detail)
}
