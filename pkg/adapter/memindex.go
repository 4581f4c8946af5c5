package adapter

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/duet/pkg/model"
)

// MemoryIndex is an embedded VectorIndex for local runs: chunks are embedded
// through Gemini at upsert time and matched by cosine similarity in memory.
// Nothing is persisted.
type MemoryIndex struct {
	mu      sync.RWMutex
	gemini  Gemini
	entries []memEntry
}

type memEntry struct {
	chunk     model.Chunk
	embedding []float32
}

func NewMemoryIndex(gemini Gemini) *MemoryIndex {
	return &MemoryIndex{gemini: gemini}
}

func (idx *MemoryIndex) Search(ctx context.Context, query string, k int) ([]*model.Chunk, error) {
	queryVec, err := idx.gemini.Embedding(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		chunk model.Chunk
		score float64
	}

	candidates := make([]scored, 0, len(idx.entries))
	for _, entry := range idx.entries {
		candidates = append(candidates, scored{
			chunk: entry.chunk,
			score: cosineSimilarity(queryVec, entry.embedding),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if k > len(candidates) {
		k = len(candidates)
	}

	chunks := make([]*model.Chunk, 0, k)
	for _, c := range candidates[:k] {
		chunk := c.chunk
		chunk.Score = c.score
		chunks = append(chunks, &chunk)
	}

	return chunks, nil
}

func (idx *MemoryIndex) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	for _, chunk := range chunks {
		embedding, err := idx.gemini.Embedding(ctx, chunk.Content)
		if err != nil {
			return goerr.Wrap(err, "failed to embed chunk", goerr.V("chunk_id", chunk.ID))
		}

		idx.mu.Lock()
		replaced := false
		for i := range idx.entries {
			if idx.entries[i].chunk.ID == chunk.ID {
				idx.entries[i] = memEntry{chunk: *chunk, embedding: embedding}
				replaced = true
				break
			}
		}
		if !replaced {
			idx.entries = append(idx.entries, memEntry{chunk: *chunk, embedding: embedding})
		}
		idx.mu.Unlock()
	}

	return nil
}

func (idx *MemoryIndex) Count(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
