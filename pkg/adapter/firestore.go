package adapter

import (
	"context"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/m-mizutani/duet/pkg/model"
)

const distanceField = "vector_distance"

// chunkDoc is the Firestore document layout for one chunk.
type chunkDoc struct {
	DocID     string             `firestore:"doc_id"`
	Content   string             `firestore:"content"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	Distance  float64            `firestore:"vector_distance,omitempty"`
}

// FirestoreIndex is a VectorIndex backed by Firestore vector search. Query
// text is embedded through Gemini and matched with FindNearest.
type FirestoreIndex struct {
	client     *firestore.Client
	gemini     Gemini
	collection string
}

type FirestoreIndexOption func(*FirestoreIndex)

func WithCollection(name string) FirestoreIndexOption {
	return func(idx *FirestoreIndex) {
		idx.collection = name
	}
}

func NewFirestoreIndex(ctx context.Context, projectID, databaseID string, gemini Gemini, opts ...FirestoreIndexOption) (*FirestoreIndex, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}

	idx := &FirestoreIndex{
		client:     client,
		gemini:     gemini,
		collection: "chunks",
	}

	for _, opt := range opts {
		opt(idx)
	}

	return idx, nil
}

func (idx *FirestoreIndex) Close() error {
	return idx.client.Close()
}

func (idx *FirestoreIndex) Search(ctx context.Context, query string, k int) ([]*model.Chunk, error) {
	embedding, err := idx.gemini.Embedding(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed search query")
	}

	vq := idx.client.Collection(idx.collection).FindNearest(
		"embedding",
		firestore.Vector32(embedding),
		k,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceResultField: distanceField,
		},
	)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var chunks []*model.Chunk
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate vector search results")
		}

		var doc chunkDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode chunk document",
				goerr.V("doc", snap.Ref.ID))
		}

		chunks = append(chunks, &model.Chunk{
			ID:      snap.Ref.ID,
			DocID:   doc.DocID,
			Content: doc.Content,
			// Cosine distance: lower is closer.
			Score: 1.0 - doc.Distance,
		})
	}

	return chunks, nil
}

func (idx *FirestoreIndex) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	bw := idx.client.BulkWriter(ctx)

	for _, chunk := range chunks {
		embedding, err := idx.gemini.Embedding(ctx, chunk.Content)
		if err != nil {
			return goerr.Wrap(err, "failed to embed chunk", goerr.V("chunk_id", chunk.ID))
		}

		ref := idx.client.Collection(idx.collection).Doc(chunk.ID)
		if _, err := bw.Set(ref, &chunkDoc{
			DocID:     chunk.DocID,
			Content:   chunk.Content,
			Embedding: firestore.Vector32(embedding),
		}); err != nil {
			return goerr.Wrap(err, "failed to enqueue chunk write", goerr.V("chunk_id", chunk.ID))
		}
	}

	bw.End()
	return nil
}

func (idx *FirestoreIndex) Count(ctx context.Context) (int, error) {
	query := idx.client.Collection(idx.collection).NewAggregationQuery().WithCount("total")
	results, err := query.Get(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count chunks")
	}

	value, ok := results["total"]
	if !ok {
		return 0, goerr.New("count aggregation returned no value")
	}

	count, ok := value.(*firestorepb.Value)
	if !ok {
		return 0, goerr.New("unexpected count aggregation type")
	}

	return int(count.GetIntegerValue()), nil
}
