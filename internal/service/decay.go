package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
	"github.com/chirino/temporal-memory-store/internal/scoring"
	"github.com/chirino/temporal-memory-store/internal/security"
)

const maxSamplesPerKind = 20

// DecayService runs decay cycles: scan every kind for items that have aged
// out or decayed below the deletion threshold, and either report what would
// be deleted (dry run) or delete it.
type DecayService struct {
	Store  registrystore.MemoryStore
	Config *config.Config
}

func NewDecayService(store registrystore.MemoryStore, cfg *config.Config) *DecayService {
	return &DecayService{Store: store, Config: cfg}
}

// Run executes one decay cycle over the given scope. Kinds scan in parallel
// (one goroutine per kind, bounded by model.AllKinds's fixed six), each
// reading with a captured `now` so no two items in the same cycle are judged
// against a different instant. Individual DeleteBatch calls retry transient
// failures with an exponential backoff before the batch is counted as an
// error, so a brief backend hiccup doesn't inflate the error count of an
// otherwise healthy cycle.
func (s *DecayService) Run(ctx context.Context, scope registrystore.DecayScope, dryRun bool, batchSize int) (model.DecayReport, error) {
	if batchSize <= 0 {
		batchSize = s.Config.DecayDefaultBatchSize
	}
	startedAt := now(ctx)

	kinds := model.AllKinds()
	perKind := make([]model.KindDecayStats, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			stats, err := s.runKind(gctx, scope, kind, dryRun, batchSize, startedAt)
			perKind[i] = stats
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return model.DecayReport{}, err
	}

	return model.DecayReport{
		DryRun:         dryRun,
		OrganizationID: orgIDOrEmpty(scope.OrganizationID),
		UserID:         scope.UserID,
		StartedAt:      startedAt,
		FinishedAt:     now(ctx),
		PerKind:        perKind,
	}, nil
}

func (s *DecayService) runKind(ctx context.Context, scope registrystore.DecayScope, kind model.Kind, dryRun bool, batchSize int, at time.Time) (model.KindDecayStats, error) {
	stats := model.KindDecayStats{Kind: kind}
	cursor := ""
	for {
		batch, next, err := s.Store.ScanForDecay(ctx, scope, kind, cursor, batchSize)
		if err != nil {
			return stats, err
		}
		stats.Scanned += len(batch)

		var toDelete []string
		for _, c := range batch {
			age := scoring.AgeDays(c.CreatedAt, at)
			comp := scoring.TemporalScore(c.ImportanceScore, c.CreatedAt, c.LastAccessedAt, c.AccessCount, at, s.Config)
			del, reason := scoring.ShouldDelete(age, comp.Temporal, s.Config)
			if !s.Config.Enabled || !del {
				continue
			}
			stats.ToDelete++
			toDelete = append(toDelete, c.ID)
			if len(stats.Samples) < maxSamplesPerKind {
				stats.Samples = append(stats.Samples, model.DeletionSample{ID: c.ID, Reason: string(reason)})
			}
		}

		if !dryRun && len(toDelete) > 0 {
			deleted, err := s.deleteBatchWithRetry(ctx, kind, toDelete)
			stats.Deleted += deleted
			if deleted > 0 && security.DecayItemsDeletedTotal != nil {
				security.DecayItemsDeletedTotal.WithLabelValues(string(kind)).Add(float64(deleted))
			}
			if err != nil {
				stats.Errors++
				log.Error("decay batch delete failed", "kind", kind, "batch_size", len(toDelete), "error", err)
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}
	return stats, nil
}

// deleteBatchWithRetry retries a failed DeleteBatch call with capped
// exponential backoff, giving a transient connection error a chance to clear
// before the batch is counted as failed for this cycle.
func (s *DecayService) deleteBatchWithRetry(ctx context.Context, kind model.Kind, ids []string) (int, error) {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	var deleted int
	start := time.Now()
	err := backoff.Retry(func() error {
		n, err := s.Store.DeleteBatch(ctx, kind, ids)
		deleted = n
		return err
	}, b)
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues("delete_batch").Observe(time.Since(start).Seconds())
	}
	return deleted, err
}

func orgIDOrEmpty(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

// Scheduler runs Run on a fixed interval until its context is canceled,
// logging a summary of each cycle. Used by the serve command to keep decay
// running in the background alongside the HTTP server.
type Scheduler struct {
	Decay    *DecayService
	Interval time.Duration

	mu      sync.Mutex
	running bool
}

func NewScheduler(decay *DecayService, interval time.Duration) *Scheduler {
	return &Scheduler{Decay: decay, Interval: interval}
}

// Start blocks until ctx is canceled, running one global decay cycle every
// Interval.
func (sc *Scheduler) Start(ctx context.Context) {
	sc.mu.Lock()
	sc.running = true
	sc.mu.Unlock()

	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := sc.Decay.Run(ctx, registrystore.DecayScope{}, false, 0)
			if err != nil {
				log.Error("decay cycle failed", "error", err)
				continue
			}
			var scanned, deleted, errs int
			for _, k := range report.PerKind {
				scanned += k.Scanned
				deleted += k.Deleted
				errs += k.Errors
			}
			log.Info("decay cycle complete", "scanned", scanned, "deleted", deleted, "errors", errs, "elapsed", report.FinishedAt.Sub(report.StartedAt))
		}
	}
}
