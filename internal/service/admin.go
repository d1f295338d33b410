package service

import (
	"context"

	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
	"github.com/chirino/temporal-memory-store/internal/scoring"
)

// AdminService implements the read-only fleet views: item counts, the
// forgettable count (a dry-run-shaped projection of what the next decay
// cycle would remove), and attribute-distribution histograms.
type AdminService struct {
	Store  registrystore.MemoryStore
	Config *config.Config
}

func NewAdminService(store registrystore.MemoryStore, cfg *config.Config) *AdminService {
	return &AdminService{Store: store, Config: cfg}
}

// CountItems returns the number of items per kind, optionally scoped to an organization.
func (s *AdminService) CountItems(ctx context.Context, organizationID *string) (map[model.Kind]int64, error) {
	return s.Store.AdminCounts(ctx, organizationID)
}

// ForgettableCount scans every item of the given kind(s) and reports how
// many currently satisfy the deletion predicate, without deleting anything.
// When kinds is empty, every kind is scanned.
func (s *AdminService) ForgettableCount(ctx context.Context, organizationID *string, kinds []model.Kind) (map[model.Kind]int64, error) {
	if len(kinds) == 0 {
		kinds = model.AllKinds()
	}
	at := now(ctx)
	scope := registrystore.DecayScope{OrganizationID: organizationID}

	out := make(map[model.Kind]int64, len(kinds))
	for _, kind := range kinds {
		var count int64
		cursor := ""
		for {
			batch, next, err := s.Store.ScanForDecay(ctx, scope, kind, cursor, s.Config.DecayDefaultBatchSize)
			if err != nil {
				return nil, err
			}
			for _, c := range batch {
				age := scoring.AgeDays(c.CreatedAt, at)
				comp := scoring.TemporalScore(c.ImportanceScore, c.CreatedAt, c.LastAccessedAt, c.AccessCount, at, s.Config)
				if del, _ := scoring.ShouldDelete(age, comp.Temporal, s.Config); s.Config.Enabled && del {
					count++
				}
			}
			if next == "" {
				break
			}
			cursor = next
		}
		out[kind] = count
	}
	return out, nil
}

// Distribution returns a histogram of one item attribute (importance_score,
// access_count, or age_days) for one kind, bucketed by the given edges
// (e.g. [1, 7, 30, 90, 365] for age_days yields six buckets).
func (s *AdminService) Distribution(ctx context.Context, organizationID *string, kind model.Kind, field model.DistributionField, bucketEdges []float64) ([]int64, error) {
	if !field.Valid() {
		return nil, &registrystore.ValidationError{Field: "field", Message: "unknown distribution field " + string(field)}
	}
	return s.Store.AdminDistribution(ctx, organizationID, kind, field, bucketEdges)
}
