package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/notes"
	"github.com/relicta-tech/notebase/internal/infrastructure/eventstore"
)

type countingCache struct {
	invalidations int
	err           error
}

func (c *countingCache) Invalidate(context.Context) error {
	c.invalidations++
	return c.err
}

func TestSyncStep_CatchesUpAndInvalidates(t *testing.T) {
	f := newFixture(t, nil)
	seedNotebook(t, f)
	cache := &countingCache{}
	step := NewSyncStep(f.orch, cache, DefaultSyncConfig(), f.logger)

	require.NoError(t, step.Sync(context.Background()))
	assert.Equal(t, 1, cache.invalidations)
	assert.Len(t, treeRows(t, f.db, NoteTreeTable), 3)
	assert.Equal(t, "closed", step.State())
}

func TestSyncStep_ViolationReportedWithoutTrippingBreaker(t *testing.T) {
	f := newFixture(t, nil)
	cache := &countingCache{}
	step := NewSyncStep(f.orch, cache, SyncConfig{FailureThreshold: 1, Cooldown: time.Minute}, f.logger)

	f.append(t, notes.AggregateCategory, "A",
		notes.CategoryCreated{CategoryID: "A", ParentID: "A", Name: "Loop", At: t0})

	err := step.Sync(context.Background())
	assert.ErrorIs(t, err, ErrTreeViolation)
	assert.Equal(t, 1, cache.invalidations)
	assert.Equal(t, "closed", step.State())
}

type brokenStore struct {
	eventsource.EventStore
}

func (brokenStore) Head(context.Context) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestSyncStep_OpensBreakerAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t, brokenStore{eventstore.NewMemoryStore()})
	step := NewSyncStep(f.orch, &countingCache{}, SyncConfig{FailureThreshold: 2, Cooldown: time.Minute}, f.logger)

	for i := 0; i < 2; i++ {
		assert.Error(t, step.Sync(context.Background()))
	}
	assert.Equal(t, "open", step.State())
	assert.Error(t, step.Sync(context.Background()), "open breaker rejects the sync")
}

func TestSyncStep_TimeoutBoundsCatchUp(t *testing.T) {
	f := newFixture(t, nil)
	seedNotebook(t, f)
	step := NewSyncStep(f.orch, nil, SyncConfig{Timeout: time.Nanosecond}, f.logger)

	err := step.Sync(context.Background())
	require.Error(t, err)

	// Projections simply stay behind and a later sync reconciles them.
	relaxed := NewSyncStep(f.orch, nil, DefaultSyncConfig(), f.logger)
	require.NoError(t, relaxed.Sync(context.Background()))
	assert.Len(t, treeRows(t, f.db, NoteTreeTable), 3)
}
