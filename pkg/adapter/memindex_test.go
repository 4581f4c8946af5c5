package adapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/duet/pkg/adapter"
	"github.com/m-mizutani/duet/pkg/model"
)

// mockEmbedder assigns fixed vectors per text so similarity is deterministic.
type mockEmbedder struct {
	vectors map[string][]float32
}

func (m *mockEmbedder) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockEmbedder) Embedding(ctx context.Context, text string) ([]float32, error) {
	vec, ok := m.vectors[text]
	if !ok {
		return nil, errors.New("no vector for text")
	}
	return vec, nil
}

func TestMemoryIndexSearchRanking(t *testing.T) {
	gemini := &mockEmbedder{vectors: map[string][]float32{
		"query":   {1, 0, 0},
		"close":   {0.9, 0.1, 0},
		"farther": {0.5, 0.5, 0},
		"far":     {0, 1, 0},
	}}

	idx := adapter.NewMemoryIndex(gemini)
	err := idx.Upsert(t.Context(), []*model.Chunk{
		{ID: "far", Content: "far"},
		{ID: "close", Content: "close"},
		{ID: "farther", Content: "farther"},
	})
	gt.NoError(t, err)

	chunks, err := idx.Search(t.Context(), "query", 2)
	gt.NoError(t, err)
	gt.Equal(t, len(chunks), 2)
	gt.Equal(t, chunks[0].ID, "close")
	gt.Equal(t, chunks[1].ID, "farther")
	gt.True(t, chunks[0].Score > chunks[1].Score)
}

func TestMemoryIndexUpsertReplacesByID(t *testing.T) {
	gemini := &mockEmbedder{vectors: map[string][]float32{
		"query": {1, 0},
		"v1":    {1, 0},
		"v2":    {0, 1},
	}}

	idx := adapter.NewMemoryIndex(gemini)
	gt.NoError(t, idx.Upsert(t.Context(), []*model.Chunk{{ID: "a", Content: "v1"}}))
	gt.NoError(t, idx.Upsert(t.Context(), []*model.Chunk{{ID: "a", Content: "v2"}}))

	count, err := idx.Count(t.Context())
	gt.NoError(t, err)
	gt.Equal(t, count, 1)

	chunks, err := idx.Search(t.Context(), "query", 1)
	gt.NoError(t, err)
	gt.Equal(t, chunks[0].Content, "v2")
}

func TestMemoryIndexSearchMoreThanStored(t *testing.T) {
	gemini := &mockEmbedder{vectors: map[string][]float32{
		"query": {1, 0},
		"only":  {1, 0},
	}}

	idx := adapter.NewMemoryIndex(gemini)
	gt.NoError(t, idx.Upsert(t.Context(), []*model.Chunk{{ID: "a", Content: "only"}}))

	chunks, err := idx.Search(t.Context(), "query", 10)
	gt.NoError(t, err)
	gt.Equal(t, len(chunks), 1)
}
