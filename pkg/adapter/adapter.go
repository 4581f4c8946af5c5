package adapter

import (
	"context"

	"github.com/m-mizutani/duet/pkg/model"
)

// QueryResult is the shape of a tabular query execution.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// TabularStore executes generated query text against the structured copy of
// the dataset. Implementations must allow concurrent Execute calls but
// serialize Load against them.
type TabularStore interface {
	// TableName returns the current table name, used in prompts.
	TableName() string

	// Columns returns the current schema column names, used in prompts.
	Columns() []string

	// Execute runs query text and returns columns and rows. A rejected or
	// failing query returns an error; the caller decides whether that is
	// fatal.
	Execute(ctx context.Context, query string) (*QueryResult, error)

	// Load replaces the table contents wholesale.
	Load(ctx context.Context, table string, columns []string, rows [][]any) error
}

// VectorIndex performs similarity search over document chunks.
type VectorIndex interface {
	// Search returns up to k chunks ranked by similarity to the query text.
	Search(ctx context.Context, query string, k int) ([]*model.Chunk, error)

	// Upsert stores chunks, replacing any with the same ID.
	Upsert(ctx context.Context, chunks []*model.Chunk) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
}
