package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	_ "github.com/chirino/temporal-memory-store/internal/plugin/store/postgres"
	registrymigrate "github.com/chirino/temporal-memory-store/internal/registry/migrate"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
	"github.com/chirino/temporal-memory-store/internal/testutil/testpg"
)

func setupTestStore(t *testing.T) (registrystore.MemoryStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	cfg.DatastoreMigrateAtStart = true
	cfg.DatastoreType = "postgres"
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, ctx
}

func TestCreateGetUpdateDelete(t *testing.T) {
	store, ctx := setupTestStore(t)

	importance := 0.4
	id, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindSemanticItem,
		OrganizationID: "org1",
		ContentFields: map[string]any{
			"name":    "Go generics",
			"summary": "type parameters on functions and types",
			"details": "introduced in Go 1.18",
			"source":  "golang.org",
		},
		ImportanceScore: &importance,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := store.Get(ctx, "org1", nil, model.KindSemanticItem, id)
	require.NoError(t, err)
	assert.Equal(t, "Go generics", got.ContentFields["name"])
	assert.Equal(t, 0.4, got.ImportanceScore)
	assert.Equal(t, int64(0), got.AccessCount)
	assert.Nil(t, got.LastAccessedAt)

	err = store.Update(ctx, model.UpdateInput{
		ID:             id,
		Kind:           model.KindSemanticItem,
		OrganizationID: "org1",
		ContentFields:  map[string]any{"details": "stable since Go 1.18"},
	})
	require.NoError(t, err)

	got, err = store.Get(ctx, "org1", nil, model.KindSemanticItem, id)
	require.NoError(t, err)
	assert.Equal(t, "stable since Go 1.18", got.ContentFields["details"])
	assert.Equal(t, "Go generics", got.ContentFields["name"])

	require.NoError(t, store.Delete(ctx, "org1", nil, model.KindSemanticItem, id))

	// Delete is hard: no tombstone, Get now returns NotFound.
	_, err = store.Get(ctx, "org1", nil, model.KindSemanticItem, id)
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestTenantIsolation(t *testing.T) {
	store, ctx := setupTestStore(t)

	idA, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindKnowledgeVaultItem,
		OrganizationID: "orgA",
		ContentFields:  map[string]any{"title": "secret A", "content": "vault A content", "vault_type": "note"},
	})
	require.NoError(t, err)

	_, err = store.Create(ctx, model.CreateInput{
		Kind:           model.KindKnowledgeVaultItem,
		OrganizationID: "orgB",
		ContentFields:  map[string]any{"title": "secret B", "content": "vault B content", "vault_type": "note"},
	})
	require.NoError(t, err)

	// orgB can never read orgA's item.
	_, err = store.Get(ctx, "orgB", nil, model.KindKnowledgeVaultItem, idA)
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))

	countsA, err := store.AdminCounts(ctx, strPtr("orgA"))
	require.NoError(t, err)
	countsB, err := store.AdminCounts(ctx, strPtr("orgB"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), countsA[model.KindKnowledgeVaultItem])
	assert.Equal(t, int64(1), countsB[model.KindKnowledgeVaultItem])
}

func TestUserScopeNarrowsVisibility(t *testing.T) {
	store, ctx := setupTestStore(t)

	userA := "userA"
	idA, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindChatMessage,
		OrganizationID: "org1",
		UserID:         &userA,
		ContentFields:  map[string]any{"session_id": "s1", "role": "user", "content": "hi"},
	})
	require.NoError(t, err)

	// Another user in the same org cannot read it.
	userB := "userB"
	_, err = store.Get(ctx, "org1", &userB, model.KindChatMessage, idA)
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))

	// But an org-wide (no user scope) read can.
	got, err := store.Get(ctx, "org1", nil, model.KindChatMessage, idA)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.ContentFields["content"])
}

func TestLexicalRetrieveAndBumpAccess(t *testing.T) {
	store, ctx := setupTestStore(t)

	id, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindProceduralItem,
		OrganizationID: "org1",
		ContentFields: map[string]any{
			"skill_name":  "deploy-service",
			"description": "roll out a new service version behind the load balancer",
			"steps":       []string{"build image", "push image", "update manifest"},
		},
	})
	require.NoError(t, err)

	text := "load balancer rollout"
	candidates, err := store.Retrieve(ctx, model.Query{
		OrganizationID: "org1",
		Kinds:          []model.Kind{model.KindProceduralItem},
		Text:           &text,
	}, 50, 50)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, id, candidates[0].ID)
	require.NotNil(t, candidates[0].RawLexicalScore)
	assert.Nil(t, candidates[0].CosineSimilarity)

	newImportance := 0.55
	newRehearsal := int64(1)
	require.NoError(t, store.BumpAccess(ctx, "org1", nil, model.KindProceduralItem, id, registrystore.RehearsalUpdate{
		NewImportanceScore: &newImportance,
		NewRehearsalCount:  &newRehearsal,
	}))

	got, err := store.Get(ctx, "org1", nil, model.KindProceduralItem, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AccessCount)
	assert.Equal(t, int64(1), got.RehearsalCount)
	assert.Equal(t, 0.55, got.ImportanceScore)
	require.NotNil(t, got.LastAccessedAt)

	// A second bump with no rehearsal effect still increments access_count
	// but leaves importance/rehearsal_count untouched.
	require.NoError(t, store.BumpAccess(ctx, "org1", nil, model.KindProceduralItem, id, registrystore.RehearsalUpdate{}))
	got, err = store.Get(ctx, "org1", nil, model.KindProceduralItem, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.Equal(t, int64(1), got.RehearsalCount)
}

func TestRetrieveRecentFallback(t *testing.T) {
	store, ctx := setupTestStore(t)

	older := time.Now().UTC().AddDate(0, 0, -2)
	newer := time.Now().UTC().AddDate(0, 0, -1)

	olderID, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindResourceItem,
		OrganizationID: "org1",
		ContentFields: map[string]any{
			"resource_name": "older doc",
			"description":   "an older resource",
			"resource_type": "document",
			"location":      "https://example.invalid/older",
		},
		CreatedAt: &older,
	})
	require.NoError(t, err)

	newerID, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindResourceItem,
		OrganizationID: "org1",
		ContentFields: map[string]any{
			"resource_name": "newer doc",
			"description":   "a newer resource",
			"resource_type": "document",
			"location":      "https://example.invalid/newer",
		},
		CreatedAt: &newer,
	})
	require.NoError(t, err)

	// Neither Text nor Vector set: falls back to the N_recent-by-created_at path.
	candidates, err := store.Retrieve(ctx, model.Query{
		OrganizationID: "org1",
		Kinds:          []model.Kind{model.KindResourceItem},
	}, 50, 50)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	byID := map[string]registrystore.Candidate{}
	for _, c := range candidates {
		byID[c.ID] = c
		assert.Nil(t, c.RawLexicalScore)
		assert.Nil(t, c.CosineSimilarity)
	}
	_, hasOlder := byID[olderID]
	_, hasNewer := byID[newerID]
	assert.True(t, hasOlder)
	assert.True(t, hasNewer)
}

func TestScanForDecayAndDeleteBatch(t *testing.T) {
	store, ctx := setupTestStore(t)

	var ids []string
	var byAge []string // oldest first
	for _, daysOld := range []int{400, 420, 380} {
		created := time.Now().UTC().AddDate(0, 0, -daysOld)
		id, err := store.Create(ctx, model.CreateInput{
			Kind:           model.KindEpisodicEvent,
			OrganizationID: "org1",
			ContentFields: map[string]any{
				"actor":      "agent",
				"event_type": "observation",
				"summary":    "stale event",
				"details":    "details",
				"tree_path":  "/root",
			},
			CreatedAt: &created,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	byAge = []string{ids[1], ids[0], ids[2]}

	scope := registrystore.DecayScope{OrganizationID: strPtr("org1")}
	candidates, cursor, err := store.ScanForDecay(ctx, scope, model.KindEpisodicEvent, "", 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.NotEmpty(t, cursor)

	// Oldest first.
	assert.Equal(t, byAge[0], candidates[0].ID)
	assert.Equal(t, byAge[1], candidates[1].ID)

	rest, nextCursor, err := store.ScanForDecay(ctx, scope, model.KindEpisodicEvent, cursor, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, byAge[2], rest[0].ID)
	assert.Empty(t, nextCursor)

	deleted, err := store.DeleteBatch(ctx, model.KindEpisodicEvent, ids)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	// A second delete of the same (already-gone) ids removes nothing, never errors.
	deleted, err = store.DeleteBatch(ctx, model.KindEpisodicEvent, ids)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestAdminDistribution(t *testing.T) {
	store, ctx := setupTestStore(t)

	recent := time.Now().UTC().AddDate(0, 0, -1)
	older := time.Now().UTC().AddDate(0, 0, -40)
	timestamps := []time.Time{recent, older}
	importances := []float64{0.1, 0.9}
	for i := range timestamps {
		_, err := store.Create(ctx, model.CreateInput{
			Kind:           model.KindResourceItem,
			OrganizationID: "org1",
			ContentFields: map[string]any{
				"resource_name": "doc",
				"description":   "a resource",
				"resource_type": "document",
				"location":      "https://example.invalid",
			},
			ImportanceScore: &importances[i],
			CreatedAt:       &timestamps[i],
		})
		require.NoError(t, err)
	}

	buckets, err := store.AdminDistribution(ctx, strPtr("org1"), model.KindResourceItem, model.DistributionAgeDays, []float64{7, 30})
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, int64(1), buckets[0]) // the 1-day-old item
	assert.Equal(t, int64(1), buckets[2]) // the 40-day-old item falls past the last edge

	buckets, err = store.AdminDistribution(ctx, strPtr("org1"), model.KindResourceItem, model.DistributionImportance, []float64{0.5})
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(1), buckets[0])
	assert.Equal(t, int64(1), buckets[1])

	// Neither item has been accessed yet: both land below the first edge.
	buckets, err = store.AdminDistribution(ctx, strPtr("org1"), model.KindResourceItem, model.DistributionAccessCount, []float64{1, 10})
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, int64(2), buckets[0])
}

func TestPing(t *testing.T) {
	store, ctx := setupTestStore(t)
	require.NoError(t, store.Ping(ctx))
}

func strPtr(s string) *string { return &s }
