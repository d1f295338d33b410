package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
)

// A high-relevance candidate (CosineSimilarity 1.0) clears the default
// rehearsal threshold (0.7), so with enabled=true it must be rehearsed.
func TestRetrieveRehearsesWhenEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Enabled = true
	store := &fakeStore{candidates: []registrystore.Candidate{staticCandidate("item-1", 0.5, 1)}}
	svc := NewRetrievalService(store, nil, &cfg)

	text := "anything"
	result, err := svc.Retrieve(context.Background(), model.Query{OrganizationID: "org1", Text: &text})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.True(t, result.Items[0].WasRehearsed)
	require.Len(t, store.bumpCalls, 1)
	require.NotNil(t, store.bumpCalls[0].NewImportanceScore)
}

// Only the items actually returned get their counters bumped and rehearsal
// applied; a candidate that was scanned but fell outside the limit is left
// untouched.
func TestRetrieveBumpsOnlyReturnedItems(t *testing.T) {
	cfg := config.DefaultConfig()
	store := &fakeStore{candidates: []registrystore.Candidate{
		candidateWithSimilarity("hot", 0.9),
		candidateWithSimilarity("warm", 0.72),
		candidateWithSimilarity("cold", 0.4),
	}}
	svc := NewRetrievalService(store, nil, &cfg)

	text := "anything"
	result, err := svc.Retrieve(context.Background(), model.Query{OrganizationID: "org1", Text: &text, Limit: 2})
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, 3, result.ScannedCandidates)
	assert.Equal(t, "hot", result.Items[0].ID)
	assert.Equal(t, "warm", result.Items[1].ID)

	// Both returned items clear the 0.7 rehearsal threshold; the third
	// candidate never gets a BumpAccess call at all.
	assert.Len(t, store.bumpCalls, 2)
	assert.True(t, result.Items[0].WasRehearsed)
	assert.True(t, result.Items[1].WasRehearsed)
}

func TestRetrieveRejectsOutOfRangeWeightOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	svc := NewRetrievalService(&fakeStore{}, nil, &cfg)

	bad := 1.5
	_, err := svc.Retrieve(context.Background(), model.Query{
		OrganizationID:  "org1",
		WeightOverrides: &model.WeightOverrides{RelevanceWeight: &bad},
	})
	var ve *registrystore.ValidationError
	require.True(t, errors.As(err, &ve))
}

// enabled=false disables rehearsal entirely, even for a candidate that
// would otherwise clear the rehearsal threshold.
func TestRetrieveSkipsRehearsalWhenDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Enabled = false
	store := &fakeStore{candidates: []registrystore.Candidate{staticCandidate("item-1", 0.5, 1)}}
	svc := NewRetrievalService(store, nil, &cfg)

	text := "anything"
	result, err := svc.Retrieve(context.Background(), model.Query{OrganizationID: "org1", Text: &text})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.False(t, result.Items[0].WasRehearsed)
	require.Len(t, store.bumpCalls, 1)
	assert.Nil(t, store.bumpCalls[0].NewImportanceScore)
	assert.Nil(t, store.bumpCalls[0].NewRehearsalCount)
}
