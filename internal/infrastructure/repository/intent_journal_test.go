package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
)

func newTestJournal(t *testing.T) *BadgerIntentJournal {
	t.Helper()
	journal, err := NewBadgerIntentJournal(JournalConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestBadgerIntentJournal_Lifecycle(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t)

	intent := &entities.Intent{
		ID:        "i-1",
		Operation: entities.OperationUpload,
		FileName:  "report.pdf",
		Actor:     "a@x.com",
	}
	require.NoError(t, journal.Begin(ctx, intent))
	require.NoError(t, journal.Advance(ctx, "i-1", entities.StateStoreWritten))

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entities.StateStoreWritten, pending[0].State)
	assert.Equal(t, "report.pdf", pending[0].FileName)
	assert.False(t, pending[0].CreatedAt.IsZero())

	require.NoError(t, journal.Fail(ctx, "i-1", entities.StateStoreWritten, errors.New("catalog unavailable")))
	pending, err = journal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "catalog unavailable", pending[0].Error)

	require.NoError(t, journal.Complete(ctx, "i-1"))
	pending, err = journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBadgerIntentJournal_PendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, journal.Begin(ctx, &entities.Intent{
			ID:        id,
			Operation: entities.OperationDelete,
			FileName:  id + ".txt",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	pending, err := journal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "c", pending[0].ID)
	assert.Equal(t, "a", pending[1].ID)
	assert.Equal(t, "b", pending[2].ID)
}

func TestBadgerIntentJournal_UnknownIntent(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t)

	assert.ErrorIs(t, journal.Advance(ctx, "missing", entities.StateComplete), repository.ErrIntentNotFound)
	assert.ErrorIs(t, journal.Fail(ctx, "missing", entities.StateComplete, nil), repository.ErrIntentNotFound)
	assert.NoError(t, journal.Complete(ctx, "missing"))
}

func TestBadgerIntentJournal_RequiresID(t *testing.T) {
	journal := newTestJournal(t)
	assert.Error(t, journal.Begin(context.Background(), &entities.Intent{}))
}

func TestBadgerIntentJournal_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	journal, err := NewBadgerIntentJournal(JournalConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, journal.Begin(ctx, &entities.Intent{ID: "keep", Operation: entities.OperationRename, FileName: "a", TargetName: "b"}))
	require.NoError(t, journal.Close())

	reopened, err := NewBadgerIntentJournal(JournalConfig{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].TargetName)
}
