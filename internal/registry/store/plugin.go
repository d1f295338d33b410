// Package store defines the MemoryStore interface every storage backend
// plugin implements, plus the plugin registry backends self-register into at
// init time.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/temporal-memory-store/internal/model"
)

// MemoryStore is the persistence interface the service layer depends on. A
// single implementation must serve every kind named in model.AllKinds: the
// interface is kind-parametric via model.CreateInput/UpdateInput/Kind rather
// than one method pair per kind, so a backend only has to implement the
// common shape once and dispatch internally on Kind.
type MemoryStore interface {
	// Create inserts a new memory item and returns its assigned ID.
	Create(ctx context.Context, input model.CreateInput) (string, error)

	// Update applies a partial update to an existing item.
	Update(ctx context.Context, input model.UpdateInput) error

	// Delete hard-deletes a single item. No tombstones: once deleted the row
	// is gone.
	Delete(ctx context.Context, organizationID string, userID *string, kind model.Kind, id string) error

	// Get fetches a single item's content fields, for callers (e.g. the
	// write API) that need to read back what was written.
	Get(ctx context.Context, organizationID string, userID *string, kind model.Kind, id string) (Candidate, error)

	// Retrieve runs the full retrieval pipeline's candidate-gathering step:
	// lexical search, vector search, or both, scoped to the query's tenant
	// and kinds, returning raw candidates with their un-combined relevance
	// signals. When the query carries neither text nor a vector, Retrieve
	// instead returns the nLex most recent candidates by created_at. The
	// service layer is responsible for temporal scoring, ranking, rehearsal,
	// and truncation to the requested limit.
	Retrieve(ctx context.Context, query model.Query, nLex, nVec int) ([]Candidate, error)

	// BumpAccess atomically increments access_count and sets last_accessed_at
	// on an item, optionally applying a rehearsal effect in the same
	// transaction.
	BumpAccess(ctx context.Context, organizationID string, userID *string, kind model.Kind, id string, update RehearsalUpdate) error

	// ScanForDecay streams candidates for decay evaluation: every item of the
	// given kind (optionally tenant-scoped) with enough state to compute its
	// temporal score, paginated by a store-defined cursor. An empty
	// nextCursor means the scan is exhausted.
	ScanForDecay(ctx context.Context, scope DecayScope, kind model.Kind, cursor string, batchSize int) (items []DecayCandidate, nextCursor string, err error)

	// DeleteBatch hard-deletes the given ids of the given kind in one
	// operation, returning how many rows were actually removed (may be less
	// than len(ids) if a concurrent delete already removed one).
	DeleteBatch(ctx context.Context, kind model.Kind, ids []string) (int, error)

	// AdminCounts returns the number of items per kind, optionally scoped to
	// an organization.
	AdminCounts(ctx context.Context, organizationID *string) (map[model.Kind]int64, error)

	// AdminDistribution returns a histogram of one item attribute
	// (importance_score, access_count, or age_days) for one kind, bucketed
	// by the caller-supplied edges: len(edges)+1 buckets, values below
	// edges[0] in the first, values at or past the last edge in the last.
	AdminDistribution(ctx context.Context, organizationID *string, kind model.Kind, field model.DistributionField, bucketEdges []float64) ([]int64, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases any resources (connection pools, etc).
	Close() error
}

// Candidate is a single retrieval candidate returned by a backend's
// Retrieve/Get, before temporal scoring is applied.
type Candidate struct {
	ID               string
	Kind             model.Kind
	ContentFields    map[string]any
	CreatedAt        time.Time
	LastAccessedAt   *time.Time
	AccessCount      int64
	RehearsalCount   int64
	ImportanceScore  float64
	RawLexicalScore  *float64 // nil when this candidate only matched via vector search
	CosineSimilarity *float64 // nil when this candidate only matched via lexical search
}

// DecayScope narrows a decay scan to a tenant, or the whole store when both
// fields are nil (an operator-triggered global sweep).
type DecayScope struct {
	OrganizationID *string
	UserID         *string
}

// DecayCandidate is the minimal state ScanForDecay needs to expose for
// scoring.ShouldDelete to run against it.
type DecayCandidate struct {
	ID              string
	CreatedAt       time.Time
	LastAccessedAt  *time.Time
	AccessCount     int64
	ImportanceScore float64
}

// RehearsalUpdate carries the new importance/rehearsal-count pair BumpAccess
// should persist alongside the access-count bump, or nil fields when the
// access didn't qualify for rehearsal.
type RehearsalUpdate struct {
	NewImportanceScore *float64
	NewRehearsalCount  *int64
}

// Loader creates a MemoryStore from the ambient config/context.
type Loader func(ctx context.Context) (MemoryStore, error)

// Plugin represents a store backend plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from backend package init()s.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
