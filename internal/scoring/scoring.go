// Package scoring implements the pure temporal-scoring engine: age, decay,
// recency, frequency, temporal and combined scores, and the
// rehearsal/deletion predicates. No function here performs I/O or reads the
// wall clock; every function takes `now` as an explicit parameter, so
// callers can exercise exact arithmetic without a real clock in the loop.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/chirino/temporal-memory-store/internal/config"
)

const secondsPerDay = 86400.0

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AgeDays returns the non-negative age of an item in days.
func AgeDays(createdAt, now time.Time) float64 {
	d := now.Sub(createdAt).Seconds() / secondsPerDay
	if d < 0 {
		return 0
	}
	return d
}

// DecayFactor computes the hybrid exponential/power-law decay: the
// exponential curve weighted by (1-w) and the power-law curve by w, so
// low-importance items forget fast and high-importance items retain on the
// power law's long tail. importance must already be clamped to
// [MinImportance, MaxImportance].
//
// The blend is not monotone in w at every age. Before the two curves cross
// (about 150 days at the default rates) the exponential term is still the
// larger one, and raising w toward 1 trades it for the smaller power-law
// term, so w*decay can dip once w exceeds roughly exp/(2*(exp-power)) in
// that regime. Past the crossover the power-law term dominates and decay is
// monotone in w everywhere.
func DecayFactor(importance float64, ageDays float64, cfg *config.Config) float64 {
	w := clamp(importance, cfg.MinImportance, cfg.MaxImportance)
	expTerm := math.Exp(-cfg.DecayLambda * ageDays)
	powerTerm := math.Pow(1+ageDays, -cfg.DecayAlpha)
	return clamp((1-w)*expTerm+w*powerTerm, 0, 1)
}

// RecencyBonus computes the recency term. lastAccessedAt == nil means the
// item was never accessed, yielding 0.
func RecencyBonus(lastAccessedAt *time.Time, now time.Time, cfg *config.Config) float64 {
	if lastAccessedAt == nil {
		return 0
	}
	delta := now.Sub(*lastAccessedAt).Seconds() / secondsPerDay
	if delta < 0 {
		delta = 0
	}
	return clamp(math.Exp(-cfg.RecencyHalvingRate*delta), 0, 1)
}

// FrequencyScore computes the diminishing-returns frequency term.
func FrequencyScore(accessCount int64, cfg *config.Config) float64 {
	if accessCount <= 0 {
		return 0
	}
	f := math.Log2(float64(accessCount)+1) / cfg.FrequencyScale
	if f > 1 {
		return 1
	}
	return f
}

// Components bundles the score breakdown for one item at one instant.
type Components struct {
	AgeDays   float64
	Decay     float64
	Recency   float64
	Frequency float64
	Temporal  float64
}

// TemporalScore computes the full score breakdown. When cfg.Enabled is
// false, temporal collapses to clamp(importance, 0, 1) and the remaining
// components are still reported for observability but play no part in it.
func TemporalScore(importance float64, createdAt time.Time, lastAccessedAt *time.Time, accessCount int64, now time.Time, cfg *config.Config) Components {
	age := AgeDays(createdAt, now)
	decay := DecayFactor(importance, age, cfg)
	recency := RecencyBonus(lastAccessedAt, now, cfg)
	frequency := FrequencyScore(accessCount, cfg)

	if !cfg.Enabled {
		return Components{
			AgeDays:   age,
			Decay:     decay,
			Recency:   recency,
			Frequency: frequency,
			Temporal:  clamp(importance, 0, 1),
		}
	}

	temporal := clamp(importance*decay+cfg.RecencyWeight*recency+cfg.FrequencyWeight*frequency, 0, 1)
	return Components{
		AgeDays:   age,
		Decay:     decay,
		Recency:   recency,
		Frequency: frequency,
		Temporal:  temporal,
	}
}

// NormalizeLexical normalizes a raw BM25 score into [0,1].
func NormalizeLexical(rawBM25 float64, cfg *config.Config) float64 {
	if cfg.RelevanceNormalizationScale <= 0 {
		return 0
	}
	n := rawBM25 / cfg.RelevanceNormalizationScale
	if n > 1 {
		return 1
	}
	if n < 0 {
		return 0
	}
	return n
}

// NormalizeVector normalizes a cosine similarity into [0,1]; negative
// similarity is treated as no relevance.
func NormalizeVector(cosineSimilarity float64) float64 {
	if cosineSimilarity < 0 {
		return 0
	}
	if cosineSimilarity > 1 {
		return 1
	}
	return cosineSimilarity
}

// CombineRelevance folds lexical and vector normalized scores into the
// single relevance the engine consumes, taking the maximum of whichever
// normalized scores are available.
func CombineRelevance(lexicalNorm, vectorNorm *float64) float64 {
	best := 0.0
	have := false
	if lexicalNorm != nil {
		best = *lexicalNorm
		have = true
	}
	if vectorNorm != nil && (!have || *vectorNorm > best) {
		best = *vectorNorm
		have = true
	}
	if !have {
		return 0
	}
	return clamp(best, 0, 1)
}

// WeightOverride optionally replaces the configured retrieval weights for a
// single query.
type WeightOverride struct {
	RelevanceWeight *float64
	TemporalWeight  *float64
}

// Weights resolves the effective relevance/temporal weights for a query,
// honoring any per-query overrides.
func Weights(cfg *config.Config, overrides *WeightOverride) (wRel, wTmp float64) {
	wRel, wTmp = cfg.RetrievalWeightRelevance, cfg.RetrievalWeightTemporal
	if overrides == nil {
		return
	}
	if overrides.RelevanceWeight != nil {
		wRel = *overrides.RelevanceWeight
	}
	if overrides.TemporalWeight != nil {
		wTmp = *overrides.TemporalWeight
	}
	return
}

// CombinedScore computes the ranking score.
func CombinedScore(relevance, temporal, wRel, wTmp float64) float64 {
	return clamp(wRel*relevance+wTmp*temporal, 0, 1)
}

// Rankable is the minimal surface the deterministic tie-breaker needs:
// ties broken by (1) higher relevance, (2) more recent created_at, (3)
// lexicographically smaller id.
type Rankable struct {
	ID        string
	CreatedAt time.Time
	Relevance float64
	Combined  float64
}

// SortRanked orders items by combined score with the deterministic tie-break rule.
func SortRanked(items []Rankable) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// ShouldRehearse reports whether a retrieval at this relevance strengthens
// the item. Callers must also check cfg.Enabled themselves: disabling the
// engine disables rehearsal entirely, and this predicate alone doesn't know
// that.
func ShouldRehearse(relevance float64, cfg *config.Config) bool {
	return relevance >= cfg.RehearsalThreshold
}

// RehearsalEffect applies the rehearsal mutation and returns the new values;
// callers are responsible for persisting them atomically with the access bump.
func RehearsalEffect(importance float64, rehearsalCount int64, cfg *config.Config) (newImportance float64, newRehearsalCount int64) {
	newImportance = math.Min(cfg.MaxImportance, importance+cfg.RehearsalBoost)
	newRehearsalCount = rehearsalCount + 1
	return
}

// DeletionReason names why ShouldDelete returned true.
type DeletionReason string

const (
	ReasonNone          DeletionReason = ""
	ReasonExceededMaxAge DeletionReason = "exceeded max age"
	ReasonBelowThreshold DeletionReason = "temporal score below threshold"
)

// ShouldDelete implements the deletion predicate. Age is checked first so
// callers get a stable reason even when both conditions hold. Callers must
// also check cfg.Enabled themselves: disabling the engine disables eviction
// entirely, and this predicate alone doesn't know that.
func ShouldDelete(ageDays, temporal float64, cfg *config.Config) (bool, DeletionReason) {
	if ageDays > cfg.MaxAgeDays {
		return true, ReasonExceededMaxAge
	}
	if temporal < cfg.DeletionThreshold {
		return true, ReasonBelowThreshold
	}
	return false, ReasonNone
}
