package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/temporal-memory-store/internal/config"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
)

func staleDecayCandidate(id string) registrystore.DecayCandidate {
	return registrystore.DecayCandidate{
		ID:              id,
		CreatedAt:       time.Now().UTC().AddDate(0, 0, -400), // past the default 365-day MaxAgeDays
		ImportanceScore: 0.1,
	}
}

func TestDecayDeletesStaleItemsWhenEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Enabled = true
	store := &fakeStore{decayItems: []registrystore.DecayCandidate{staleDecayCandidate("item-1")}}
	svc := NewDecayService(store, &cfg)

	report, err := svc.Run(context.Background(), registrystore.DecayScope{}, false, 10)
	require.NoError(t, err)

	// The fake store hands back the same stale candidate for every one of the
	// six kinds scanned in parallel, so each kind's scan independently finds
	// and deletes it.
	var deleted int
	for _, k := range report.PerKind {
		deleted += k.Deleted
	}
	assert.Equal(t, 6, deleted)
	assert.Len(t, store.deletedIDs, 6)
}

// A dry run reports the full deletion plan but writes nothing.
func TestDecayDryRunDeletesNothing(t *testing.T) {
	cfg := config.DefaultConfig()
	store := &fakeStore{decayItems: []registrystore.DecayCandidate{staleDecayCandidate("item-1")}}
	svc := NewDecayService(store, &cfg)

	report, err := svc.Run(context.Background(), registrystore.DecayScope{}, true, 10)
	require.NoError(t, err)
	assert.True(t, report.DryRun)

	var toDelete, deleted int
	for _, k := range report.PerKind {
		toDelete += k.ToDelete
		deleted += k.Deleted
	}
	assert.Equal(t, 6, toDelete)
	assert.Equal(t, 0, deleted)
	assert.Equal(t, 0, store.deleteCalls)
	assert.Empty(t, store.deletedIDs)
}

// An item past max_age_days reports the age reason even when its temporal
// score is also below threshold: ShouldDelete checks age first.
func TestDecayReportsAgeReasonFirst(t *testing.T) {
	cfg := config.DefaultConfig()
	store := &fakeStore{decayItems: []registrystore.DecayCandidate{staleDecayCandidate("item-1")}}
	svc := NewDecayService(store, &cfg)

	report, err := svc.Run(context.Background(), registrystore.DecayScope{}, true, 10)
	require.NoError(t, err)
	for _, k := range report.PerKind {
		require.Len(t, k.Samples, 1)
		assert.Equal(t, "item-1", k.Samples[0].ID)
		assert.Equal(t, "exceeded max age", k.Samples[0].Reason)
	}
}

// enabled=false means no eviction occurs, even for items that would
// otherwise satisfy the deletion predicate.
func TestDecaySkipsEvictionWhenDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Enabled = false
	store := &fakeStore{decayItems: []registrystore.DecayCandidate{staleDecayCandidate("item-1")}}
	svc := NewDecayService(store, &cfg)

	report, err := svc.Run(context.Background(), registrystore.DecayScope{}, false, 10)
	require.NoError(t, err)

	var scanned, toDelete, deleted int
	for _, k := range report.PerKind {
		scanned += k.Scanned
		toDelete += k.ToDelete
		deleted += k.Deleted
	}
	assert.Equal(t, 6, scanned) // every kind's scan still runs
	assert.Equal(t, 0, toDelete)
	assert.Equal(t, 0, deleted)
	assert.Empty(t, store.deletedIDs)
}
