package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	registryembed "github.com/chirino/temporal-memory-store/internal/registry/embed"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
	"github.com/chirino/temporal-memory-store/internal/scoring"
	"github.com/chirino/temporal-memory-store/internal/security"
)

// RetrievalService implements the retrieval pipeline: gather lexical and/or
// vector candidates, score them, rank them, apply rehearsal side effects to
// the items actually returned, and report the per-item score breakdown.
type RetrievalService struct {
	Store    registrystore.MemoryStore
	Embedder registryembed.Embedder // nil when embeddings are disabled
	Config   *config.Config
}

func NewRetrievalService(store registrystore.MemoryStore, embedder registryembed.Embedder, cfg *config.Config) *RetrievalService {
	return &RetrievalService{Store: store, Embedder: embedder, Config: cfg}
}

// Retrieve runs the full pipeline for one query.
func (s *RetrievalService) Retrieve(ctx context.Context, query model.Query) (model.RetrievalResult, error) {
	start := time.Now()

	if err := s.validateQuery(query); err != nil {
		return model.RetrievalResult{}, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = s.Config.DefaultLimit
	}
	if limit > s.Config.MaxLimit {
		limit = s.Config.MaxLimit
	}

	nCandidates := limit * s.Config.CandidateMult
	if nCandidates < s.Config.MinCandidates {
		nCandidates = s.Config.MinCandidates
	}

	result := model.RetrievalResult{}

	// The vector leg is populated only when the caller supplied a vector
	// directly, or supplied text and an embedding provider is available to
	// turn it into one. A provider failure degrades to lexical-only instead
	// of failing the request.
	effectiveQuery := query
	if len(effectiveQuery.Vector) == 0 && effectiveQuery.Text != nil && s.Embedder != nil {
		vecs, err := s.Embedder.EmbedTexts(ctx, []string{*effectiveQuery.Text})
		if err != nil {
			result.VectorUnavailable = true
		} else if len(vecs) == 1 {
			effectiveQuery.Vector = vecs[0]
		}
	} else if len(effectiveQuery.Vector) == 0 && effectiveQuery.Text != nil && s.Embedder == nil {
		result.VectorUnavailable = true
	}

	retrieveStart := time.Now()
	candidates, err := s.Store.Retrieve(ctx, effectiveQuery, nCandidates, nCandidates)
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues("retrieve").Observe(time.Since(retrieveStart).Seconds())
	}
	if err != nil {
		if bu, ok := asBackendUnavailable(err); ok {
			switch bu.Component {
			case "vector index":
				result.VectorUnavailable = true
			case "lexical index":
				result.LexicalUnavailable = true
			default:
				return model.RetrievalResult{}, err
			}
		} else {
			return model.RetrievalResult{}, err
		}
	}

	at := now(ctx)
	wRel, wTmp := scoring.Weights(s.Config, weightOverride(query.WeightOverrides))

	type scored struct {
		cand      registrystore.Candidate
		relevance float64
		temporal  float64
		combined  float64
		ageDays   float64
	}
	scoredItems := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		var lexNorm, vecNorm *float64
		if c.RawLexicalScore != nil {
			v := scoring.NormalizeLexical(*c.RawLexicalScore, s.Config)
			lexNorm = &v
		}
		if c.CosineSimilarity != nil {
			v := scoring.NormalizeVector(*c.CosineSimilarity)
			vecNorm = &v
		}
		relevance := scoring.CombineRelevance(lexNorm, vecNorm)
		comp := scoring.TemporalScore(c.ImportanceScore, c.CreatedAt, c.LastAccessedAt, c.AccessCount, at, s.Config)
		combined := scoring.CombinedScore(relevance, comp.Temporal, wRel, wTmp)
		scoredItems = append(scoredItems, scored{cand: c, relevance: relevance, temporal: comp.Temporal, combined: combined, ageDays: comp.AgeDays})
	}

	rankable := make([]scoring.Rankable, len(scoredItems))
	for i, it := range scoredItems {
		rankable[i] = scoring.Rankable{ID: it.cand.ID, CreatedAt: it.cand.CreatedAt, Relevance: it.relevance, Combined: it.combined}
	}
	scoring.SortRanked(rankable)

	order := make(map[string]int, len(rankable))
	for i, r := range rankable {
		order[r.ID] = i
	}
	sort.SliceStable(scoredItems, func(i, j int) bool {
		return order[scoredItems[i].cand.ID] < order[scoredItems[j].cand.ID]
	})

	result.ScannedCandidates = len(scoredItems)
	if len(scoredItems) > limit {
		scoredItems = scoredItems[:limit]
	}

	items := make([]model.RetrievedItem, len(scoredItems))
	for i, it := range scoredItems {
		rehearse := s.Config.Enabled && scoring.ShouldRehearse(it.relevance, s.Config)
		newImportance := it.cand.ImportanceScore
		newRehearsalCount := it.cand.RehearsalCount
		update := registrystore.RehearsalUpdate{}
		if rehearse {
			newImportance, newRehearsalCount = scoring.RehearsalEffect(it.cand.ImportanceScore, it.cand.RehearsalCount, s.Config)
			update.NewImportanceScore = &newImportance
			update.NewRehearsalCount = &newRehearsalCount
		}
		err := s.Store.BumpAccess(ctx, query.OrganizationID, query.UserID, it.cand.Kind, it.cand.ID, update)
		var conflict *registrystore.ConflictError
		if errors.As(err, &conflict) {
			// A lost-update conflict gets one retry before giving up.
			err = s.Store.BumpAccess(ctx, query.OrganizationID, query.UserID, it.cand.Kind, it.cand.ID, update)
		}
		if err != nil {
			// A failed rehearsal bump must not fail the whole retrieval; the
			// item is still returned with its pre-bump counters.
			newImportance = it.cand.ImportanceScore
			newRehearsalCount = it.cand.RehearsalCount
			rehearse = false
		}

		items[i] = model.RetrievedItem{
			ID:             it.cand.ID,
			Kind:           it.cand.Kind,
			ContentFields:  it.cand.ContentFields,
			Relevance:      it.relevance,
			Temporal:       it.temporal,
			Combined:       it.combined,
			AgeDays:        it.ageDays,
			WasRehearsed:   rehearse,
			ImportanceNew:  newImportance,
			RehearsalCount: newRehearsalCount,
		}
	}

	result.Items = items
	result.ElapsedMS = time.Since(start).Milliseconds()
	return result, nil
}

func (s *RetrievalService) validateQuery(query model.Query) error {
	if query.OrganizationID == "" {
		return &registrystore.ValidationError{Field: "organization_id", Message: "is required"}
	}
	for _, k := range query.Kinds {
		if !k.Valid() {
			return &registrystore.ValidationError{Field: "kinds", Message: "unknown kind " + string(k)}
		}
	}
	if query.WeightOverrides != nil {
		if query.WeightOverrides.RelevanceWeight != nil && (*query.WeightOverrides.RelevanceWeight < 0 || *query.WeightOverrides.RelevanceWeight > 1) {
			return &registrystore.ValidationError{Field: "weight_overrides.relevance_weight", Message: "must be within [0,1]"}
		}
		if query.WeightOverrides.TemporalWeight != nil && (*query.WeightOverrides.TemporalWeight < 0 || *query.WeightOverrides.TemporalWeight > 1) {
			return &registrystore.ValidationError{Field: "weight_overrides.temporal_weight", Message: "must be within [0,1]"}
		}
		wRel, wTmp := scoring.Weights(s.Config, weightOverride(query.WeightOverrides))
		if wRel == 0 && wTmp == 0 {
			return &registrystore.ValidationError{Field: "weight_overrides", Message: "relevance and temporal weights must not both be zero"}
		}
	}
	return nil
}

func weightOverride(w *model.WeightOverrides) *scoring.WeightOverride {
	if w == nil {
		return nil
	}
	return &scoring.WeightOverride{RelevanceWeight: w.RelevanceWeight, TemporalWeight: w.TemporalWeight}
}

func asBackendUnavailable(err error) (*registrystore.BackendUnavailableError, bool) {
	bu, ok := err.(*registrystore.BackendUnavailableError)
	return bu, ok
}
