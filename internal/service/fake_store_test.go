package service

import (
	"context"
	"sync"
	"time"

	"github.com/chirino/temporal-memory-store/internal/model"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
)

// fakeStore is a minimal in-memory registrystore.MemoryStore used to exercise
// the service layer's orchestration without a real backend. Only the methods
// the tests in this package touch do anything useful. DecayService.Run scans
// kinds concurrently, so the fields below are guarded by mu.
type fakeStore struct {
	candidates []registrystore.Candidate
	decayItems []registrystore.DecayCandidate
	counts     map[model.Kind]int64

	mu           sync.Mutex
	bumpCalls    []registrystore.RehearsalUpdate
	deletedIDs   []string
	deleteCalls  int
	createInputs []model.CreateInput
	updateInputs []model.UpdateInput
}

func (f *fakeStore) Create(_ context.Context, input model.CreateInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createInputs = append(f.createInputs, input)
	return "fake-id", nil
}

func (f *fakeStore) Update(_ context.Context, input model.UpdateInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateInputs = append(f.updateInputs, input)
	return nil
}

func (f *fakeStore) Delete(context.Context, string, *string, model.Kind, string) error {
	return nil
}
func (f *fakeStore) Get(context.Context, string, *string, model.Kind, string) (registrystore.Candidate, error) {
	return registrystore.Candidate{}, nil
}

func (f *fakeStore) Retrieve(context.Context, model.Query, int, int) ([]registrystore.Candidate, error) {
	return f.candidates, nil
}

func (f *fakeStore) BumpAccess(_ context.Context, _ string, _ *string, _ model.Kind, _ string, update registrystore.RehearsalUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumpCalls = append(f.bumpCalls, update)
	return nil
}

func (f *fakeStore) ScanForDecay(context.Context, registrystore.DecayScope, model.Kind, string, int) ([]registrystore.DecayCandidate, string, error) {
	return f.decayItems, "", nil
}

func (f *fakeStore) DeleteBatch(_ context.Context, _ model.Kind, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.deletedIDs = append(f.deletedIDs, ids...)
	return len(ids), nil
}

func (f *fakeStore) AdminCounts(context.Context, *string) (map[model.Kind]int64, error) {
	return f.counts, nil
}

func (f *fakeStore) AdminDistribution(context.Context, *string, model.Kind, model.DistributionField, []float64) ([]int64, error) {
	return nil, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

var _ registrystore.MemoryStore = (*fakeStore)(nil)

func staticCandidate(id string, importance float64, ageDays float64) registrystore.Candidate {
	sim := 1.0
	return registrystore.Candidate{
		ID:               id,
		Kind:             model.KindSemanticItem,
		ContentFields:    map[string]any{"name": id},
		CreatedAt:        time.Now().UTC().AddDate(0, 0, -int(ageDays)),
		ImportanceScore:  importance,
		CosineSimilarity: &sim,
	}
}

func candidateWithSimilarity(id string, sim float64) registrystore.Candidate {
	c := staticCandidate(id, 0.5, 1)
	c.CosineSimilarity = &sim
	return c
}
