package adapter

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
)

// BigQueryStore is a query-only TabularStore backend for datasets that
// already live in BigQuery. Load is not supported; data there is managed by
// external pipelines.
type BigQueryStore struct {
	client  *bigquery.Client
	dataset string
	table   string
	columns []string
}

func NewBigQuery(ctx context.Context, projectID, datasetID, table string) (*BigQueryStore, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	metadata, err := client.Dataset(datasetID).Table(table).Metadata(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get table metadata",
			goerr.V("dataset", datasetID), goerr.V("table", table))
	}

	columns := make([]string, 0, len(metadata.Schema))
	for _, field := range metadata.Schema {
		columns = append(columns, field.Name)
	}

	return &BigQueryStore{
		client:  client,
		dataset: datasetID,
		table:   table,
		columns: columns,
	}, nil
}

func (s *BigQueryStore) Close() error {
	return s.client.Close()
}

func (s *BigQueryStore) TableName() string {
	return s.dataset + "." + s.table
}

func (s *BigQueryStore) Columns() []string {
	cols := make([]string, len(s.columns))
	copy(cols, s.columns)
	return cols
}

func (s *BigQueryStore) Execute(ctx context.Context, query string) (*QueryResult, error) {
	q := s.client.Query(query)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "query execution failed", goerr.V("query", query))
	}

	result := &QueryResult{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate query result")
		}

		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v
		}
		result.Rows = append(result.Rows, values)
	}

	// Schema becomes available once iteration has started.
	for _, field := range it.Schema {
		result.Columns = append(result.Columns, field.Name)
	}

	return result, nil
}

func (s *BigQueryStore) Load(ctx context.Context, table string, columns []string, rows [][]any) error {
	return goerr.New("BigQuery backend is query-only; load data with an external pipeline",
		goerr.V("table", table))
}
