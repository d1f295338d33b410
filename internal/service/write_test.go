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

// fakeEmbedder returns a constant vector for every text, recording what it
// was asked to embed.
type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return 3 }

func TestCreateRejectsUnknownKind(t *testing.T) {
	cfg := config.DefaultConfig()
	svc := NewWriteService(&fakeStore{}, nil, &cfg)

	_, err := svc.Create(context.Background(), model.CreateInput{
		Kind:           model.Kind("diary"),
		OrganizationID: "org1",
	})
	var ve *registrystore.ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestCreateRejectsMissingRequiredField(t *testing.T) {
	cfg := config.DefaultConfig()
	svc := NewWriteService(&fakeStore{}, nil, &cfg)

	// A chat message without content must not reach the store.
	_, err := svc.Create(context.Background(), model.CreateInput{
		Kind:           model.KindChatMessage,
		OrganizationID: "org1",
		ContentFields:  map[string]any{"session_id": "s1", "role": "user"},
	})
	var ve *registrystore.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "content", ve.Field)
}

func TestCreateDefaultsAndClampsImportance(t *testing.T) {
	cfg := config.DefaultConfig()
	store := &fakeStore{}
	svc := NewWriteService(store, nil, &cfg)

	_, err := svc.Create(context.Background(), model.CreateInput{
		Kind:           model.KindSemanticItem,
		OrganizationID: "org1",
		ContentFields:  map[string]any{"name": "n", "summary": "s"},
	})
	require.NoError(t, err)

	tooHigh := 7.5
	_, err = svc.Create(context.Background(), model.CreateInput{
		Kind:            model.KindSemanticItem,
		OrganizationID:  "org1",
		ContentFields:   map[string]any{"name": "n2", "summary": "s2"},
		ImportanceScore: &tooHigh,
	})
	require.NoError(t, err)

	require.Len(t, store.createInputs, 2)
	assert.Equal(t, 0.5, *store.createInputs[0].ImportanceScore)
	assert.Equal(t, cfg.MaxImportance, *store.createInputs[1].ImportanceScore)
}

func TestCreateEmbedsPrimaryTextField(t *testing.T) {
	cfg := config.DefaultConfig()
	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	svc := NewWriteService(store, embedder, &cfg)

	_, err := svc.Create(context.Background(), model.CreateInput{
		Kind:           model.KindKnowledgeVaultItem,
		OrganizationID: "org1",
		ContentFields:  map[string]any{"title": "t", "content": "the vault body", "vault_type": "note"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"the vault body"}, embedder.texts)
	require.Len(t, store.createInputs, 1)
	assert.Equal(t, []float32{1, 0, 0}, store.createInputs[0].ContentFields["content_embedding"])
}

func TestCreateSurfacesEmbedderFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	svc := NewWriteService(&fakeStore{}, &fakeEmbedder{err: errors.New("provider down")}, &cfg)

	_, err := svc.Create(context.Background(), model.CreateInput{
		Kind:           model.KindKnowledgeVaultItem,
		OrganizationID: "org1",
		ContentFields:  map[string]any{"title": "t", "content": "body", "vault_type": "note"},
	})
	var bu *registrystore.BackendUnavailableError
	require.True(t, errors.As(err, &bu))
}

func TestUpdateClampsImportance(t *testing.T) {
	cfg := config.DefaultConfig()
	store := &fakeStore{}
	svc := NewWriteService(store, nil, &cfg)

	negative := -3.0
	err := svc.Update(context.Background(), model.UpdateInput{
		ID:              "item-1",
		Kind:            model.KindSemanticItem,
		OrganizationID:  "org1",
		ImportanceScore: &negative,
	})
	require.NoError(t, err)
	require.Len(t, store.updateInputs, 1)
	assert.Equal(t, cfg.MinImportance, *store.updateInputs[0].ImportanceScore)
}
