package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
)

// ForgettableCount must match what a decay cycle would actually remove: the
// stale candidate counts, the fresh one doesn't, and nothing is deleted.
func TestForgettableCountMatchesDeletionPredicate(t *testing.T) {
	cfg := config.DefaultConfig()
	store := &fakeStore{decayItems: []registrystore.DecayCandidate{
		{ID: "stale", CreatedAt: time.Now().UTC().AddDate(0, 0, -400), ImportanceScore: 0.1},
		{ID: "fresh", CreatedAt: time.Now().UTC(), ImportanceScore: 0.9},
	}}
	svc := NewAdminService(store, &cfg)

	counts, err := svc.ForgettableCount(context.Background(), nil, []model.Kind{model.KindSemanticItem})
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.KindSemanticItem])
	assert.Empty(t, store.deletedIDs)
}

func TestForgettableCountZeroWhenDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Enabled = false
	store := &fakeStore{decayItems: []registrystore.DecayCandidate{
		{ID: "stale", CreatedAt: time.Now().UTC().AddDate(0, 0, -400), ImportanceScore: 0.1},
	}}
	svc := NewAdminService(store, &cfg)

	counts, err := svc.ForgettableCount(context.Background(), nil, []model.Kind{model.KindSemanticItem})
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[model.KindSemanticItem])
}

func TestDistributionRejectsUnknownField(t *testing.T) {
	cfg := config.DefaultConfig()
	svc := NewAdminService(&fakeStore{}, &cfg)

	_, err := svc.Distribution(context.Background(), nil, model.KindSemanticItem, model.DistributionField("color"), nil)
	var ve *registrystore.ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestCountItemsPassesThrough(t *testing.T) {
	cfg := config.DefaultConfig()
	store := &fakeStore{counts: map[model.Kind]int64{model.KindChatMessage: 42}}
	svc := NewAdminService(store, &cfg)

	counts, err := svc.CountItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), counts[model.KindChatMessage])
}
