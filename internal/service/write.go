// Package service implements the core operations: the write API, the
// retrieval pipeline, the decay maintenance task, and the admin views. Each
// file here is a thin orchestration layer over the pure internal/scoring
// engine and a registrystore.MemoryStore backend; no business rule lives in
// the HTTP route handlers.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/temporal-memory-store/internal/clock"
	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	registryembed "github.com/chirino/temporal-memory-store/internal/registry/embed"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
)

// WriteService implements the create/update/delete/get operations. It owns
// embedding population on write so that route handlers and backends never
// have to call an embedding provider themselves.
type WriteService struct {
	Store    registrystore.MemoryStore
	Embedder registryembed.Embedder // nil when embeddings are disabled
	Config   *config.Config
}

func NewWriteService(store registrystore.MemoryStore, embedder registryembed.Embedder, cfg *config.Config) *WriteService {
	return &WriteService{Store: store, Embedder: embedder, Config: cfg}
}

// Create validates input.ContentFields against the kind's required fields,
// clamps importance_score into [MinImportance, MaxImportance], embeds the
// kind's primary text field when an embedding provider is configured, and
// persists the item.
func (s *WriteService) Create(ctx context.Context, input model.CreateInput) (string, error) {
	if !input.Kind.Valid() {
		return "", &registrystore.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", input.Kind)}
	}
	if input.OrganizationID == "" {
		return "", &registrystore.ValidationError{Field: "organization_id", Message: "is required"}
	}
	for _, f := range model.RequiredFields(input.Kind) {
		v, ok := input.ContentFields[f]
		if !ok {
			return "", &registrystore.ValidationError{Field: f, Message: "is required"}
		}
		if s, ok := v.(string); ok && s == "" {
			return "", &registrystore.ValidationError{Field: f, Message: "must not be empty"}
		}
	}

	importance := 0.5
	if input.ImportanceScore != nil {
		importance = clampImportance(*input.ImportanceScore, s.Config)
	}
	input.ImportanceScore = &importance
	if input.Kind != model.KindChatMessage && input.Kind != model.KindEpisodicEvent {
		input.CreatedAt = nil
	}

	if err := s.embed(ctx, input.Kind, input.ContentFields); err != nil {
		return "", err
	}

	return s.Store.Create(ctx, input)
}

// Update applies a partial update, re-embedding the primary text field when
// it changed and a provider is configured. access_count, rehearsal_count,
// and last_accessed_at are never reachable through UpdateInput; those fields
// are only ever mutated by BumpAccess.
func (s *WriteService) Update(ctx context.Context, input model.UpdateInput) error {
	if !input.Kind.Valid() {
		return &registrystore.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", input.Kind)}
	}
	if input.ImportanceScore != nil {
		clamped := clampImportance(*input.ImportanceScore, s.Config)
		input.ImportanceScore = &clamped
	}
	if len(input.ContentFields) > 0 {
		if err := s.embed(ctx, input.Kind, input.ContentFields); err != nil {
			return err
		}
	}
	return s.Store.Update(ctx, input)
}

func (s *WriteService) Delete(ctx context.Context, organizationID string, userID *string, kind model.Kind, id string) error {
	return s.Store.Delete(ctx, organizationID, userID, kind, id)
}

func (s *WriteService) Get(ctx context.Context, organizationID string, userID *string, kind model.Kind, id string) (registrystore.Candidate, error) {
	return s.Store.Get(ctx, organizationID, userID, kind, id)
}

// embed fills in the kind's embedding field (e.g. content_embedding) from its
// primary text field, in place on the ContentFields map. A missing or
// disabled embedder is not an error: the item is simply stored without a
// vector and only surfaces through lexical search.
func (s *WriteService) embed(ctx context.Context, kind model.Kind, fields map[string]any) error {
	if s.Embedder == nil {
		return nil
	}
	textField, vectorField := model.EmbeddingSourceField(kind)
	if textField == "" {
		return nil
	}
	raw, ok := fields[textField]
	if !ok {
		return nil
	}
	text, ok := raw.(string)
	if !ok || text == "" {
		return nil
	}
	vectors, err := s.Embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return &registrystore.BackendUnavailableError{Component: "embedding provider", Cause: err}
	}
	if len(vectors) != 1 {
		return nil
	}
	fields[vectorField] = vectors[0]
	return nil
}

func clampImportance(v float64, cfg *config.Config) float64 {
	if cfg == nil {
		return v
	}
	if v < cfg.MinImportance {
		return cfg.MinImportance
	}
	if v > cfg.MaxImportance {
		return cfg.MaxImportance
	}
	return v
}

// now returns the clock-aware current time, honoring a Mock clock injected
// into ctx by tests (internal/clock).
func now(ctx context.Context) time.Time {
	return clock.FromContext(ctx).Now()
}
