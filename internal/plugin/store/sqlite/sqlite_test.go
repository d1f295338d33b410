package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	registrymigrate "github.com/chirino/temporal-memory-store/internal/registry/migrate"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"

	_ "github.com/chirino/temporal-memory-store/internal/plugin/store/sqlite"
)

func newTestStore(t *testing.T) (registrystore.MemoryStore, context.Context) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DatastoreMigrateAtStart = true
	cfg.DBURL = filepath.Join(t.TempDir(), "memory.db")
	ctx := config.WithContext(context.Background(), &cfg)

	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, ctx
}

func TestSQLiteCreateGetDelete(t *testing.T) {
	store, ctx := newTestStore(t)

	id, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindKnowledgeVaultItem,
		OrganizationID: "org1",
		ContentFields: map[string]any{
			"title":      "root password rotation policy",
			"content":    "rotate every 90 days",
			"vault_type": "policy",
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := store.Get(ctx, "org1", nil, model.KindKnowledgeVaultItem, id)
	require.NoError(t, err)
	assert.Equal(t, "rotate every 90 days", got.ContentFields["content"])
	assert.Equal(t, 0.5, got.ImportanceScore) // default importance

	require.NoError(t, store.Delete(ctx, "org1", nil, model.KindKnowledgeVaultItem, id))

	_, err = store.Get(ctx, "org1", nil, model.KindKnowledgeVaultItem, id)
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestSQLiteLexicalSearch(t *testing.T) {
	store, ctx := newTestStore(t)

	id, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindSemanticItem,
		OrganizationID: "org1",
		ContentFields: map[string]any{
			"name":    "context windows",
			"summary": "large context windows let an agent hold more conversation history",
			"details": "trade-off against latency and cost",
			"source":  "internal notes",
		},
	})
	require.NoError(t, err)

	_, err = store.Create(ctx, model.CreateInput{
		Kind:           model.KindSemanticItem,
		OrganizationID: "org1",
		ContentFields: map[string]any{
			"name":    "unrelated",
			"summary": "the weather today is sunny and warm",
			"details": "nothing to do with context",
			"source":  "internal notes",
		},
	})
	require.NoError(t, err)

	text := "context windows conversation"
	candidates, err := store.Retrieve(ctx, model.Query{
		OrganizationID: "org1",
		Kinds:          []model.Kind{model.KindSemanticItem},
		Text:           &text,
	}, 50, 50)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(candidates), 1)

	var found bool
	for _, c := range candidates {
		if c.ID == id {
			found = true
			require.NotNil(t, c.RawLexicalScore)
		}
	}
	assert.True(t, found, "expected the context-windows item to be a lexical match")
}

func TestSQLiteRetrieveRecentFallback(t *testing.T) {
	store, ctx := newTestStore(t)

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

func TestSQLiteBumpAccessAndDecayScan(t *testing.T) {
	store, ctx := newTestStore(t)

	old := time.Now().UTC().AddDate(0, 0, -400)
	id, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindEpisodicEvent,
		OrganizationID: "org1",
		ContentFields: map[string]any{
			"actor":      "agent",
			"event_type": "observation",
			"summary":    "a stale episodic event",
			"details":    "details",
			"tree_path":  "/root",
		},
		CreatedAt: &old,
	})
	require.NoError(t, err)

	newImportance := 0.6
	newRehearsal := int64(1)
	require.NoError(t, store.BumpAccess(ctx, "org1", nil, model.KindEpisodicEvent, id, registrystore.RehearsalUpdate{
		NewImportanceScore: &newImportance,
		NewRehearsalCount:  &newRehearsal,
	}))

	got, err := store.Get(ctx, "org1", nil, model.KindEpisodicEvent, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AccessCount)
	assert.Equal(t, int64(1), got.RehearsalCount)
	assert.Equal(t, 0.6, got.ImportanceScore)

	scope := registrystore.DecayScope{OrganizationID: strPtr("org1")}
	candidates, cursor, err := store.ScanForDecay(ctx, scope, model.KindEpisodicEvent, "", 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Empty(t, cursor)
	assert.Equal(t, id, candidates[0].ID)

	deleted, err := store.DeleteBatch(ctx, model.KindEpisodicEvent, []string{id})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestSQLiteAdminCounts(t *testing.T) {
	store, ctx := newTestStore(t)

	_, err := store.Create(ctx, model.CreateInput{
		Kind:           model.KindResourceItem,
		OrganizationID: "org1",
		ContentFields: map[string]any{
			"resource_name": "runbook",
			"description":   "incident runbook",
			"resource_type": "document",
			"location":      "https://example.invalid/runbook",
		},
	})
	require.NoError(t, err)

	counts, err := store.AdminCounts(ctx, strPtr("org1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.KindResourceItem])

	require.NoError(t, store.Ping(ctx))
}

func strPtr(s string) *string { return &s }
