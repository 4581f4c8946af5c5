// Package ingest parses the unified JSON dataset and prepares it for both
// stores: flat rows for the tabular store and rendered chunks for the vector
// index.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/duet/pkg/model"
)

// Dataset is the parsed form of one data file.
type Dataset struct {
	Table   string
	Columns []string
	Rows    [][]any
	Chunks  []*model.Chunk
}

// LoadFile reads and parses a dataset file. The table name derives from the
// file stem.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read data file", goerr.V("path", path))
	}

	return Parse(data, TableNameFromPath(path))
}

// Parse accepts either the chunked format
// [{"<uuid>": {"doc_id": ..., "chunk_id": ..., "content": [rows]}}, ...]
// or a flat row list [{...}, {...}].
func Parse(data []byte, table string) (*Dataset, error) {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, goerr.Wrap(err, "data file is not a JSON array of objects")
	}
	if len(entries) == 0 {
		return nil, goerr.New("data file contains no entries")
	}

	ds := &Dataset{Table: table}

	if isChunkFormat(entries[0]) {
		if err := ds.parseChunked(entries); err != nil {
			return nil, err
		}
	} else {
		if err := ds.parseFlat(data); err != nil {
			return nil, err
		}
	}

	if len(ds.Rows) == 0 {
		return nil, goerr.New("no data rows extracted", goerr.V("table", table))
	}

	return ds, nil
}

type chunkEntry struct {
	DocID   string           `json:"doc_id"`
	ChunkID string           `json:"chunk_id"`
	Content []map[string]any `json:"content"`
}

func isChunkFormat(entry map[string]json.RawMessage) bool {
	for _, raw := range entry {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err != nil {
			return false
		}
		_, ok := inner["content"]
		return ok
	}
	return false
}

func (ds *Dataset) parseChunked(entries []map[string]json.RawMessage) error {
	for _, entry := range entries {
		for key, raw := range entry {
			var chunk chunkEntry
			if err := json.Unmarshal(raw, &chunk); err != nil {
				return goerr.Wrap(err, "malformed chunk entry", goerr.V("key", key))
			}

			for _, row := range chunk.Content {
				ds.appendRow(row)
			}

			text := renderChunkText(chunk.Content)
			if text == "" {
				continue
			}

			id := chunk.ChunkID
			if id == "" {
				id = key
			}
			ds.Chunks = append(ds.Chunks, &model.Chunk{
				ID:      id,
				DocID:   chunk.DocID,
				Content: text,
			})
		}
	}
	return nil
}

func (ds *Dataset) parseFlat(data []byte) error {
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return goerr.Wrap(err, "malformed flat row list")
	}

	for i, row := range rows {
		ds.appendRow(row)

		text := renderChunkText([]map[string]any{row})
		if text == "" {
			continue
		}
		ds.Chunks = append(ds.Chunks, &model.Chunk{
			ID:      fmt.Sprintf("%s-%d", ds.Table, i),
			DocID:   ds.Table,
			Content: text,
		})
	}
	return nil
}

// appendRow folds a row into the dataset, extending the column set in
// encounter order and backfilling earlier rows with NULLs.
func (ds *Dataset) appendRow(row map[string]any) {
	index := make(map[string]int, len(ds.Columns))
	for i, col := range ds.Columns {
		index[col] = i
	}

	for _, key := range sortedKeys(row) {
		col := SanitizeColumn(key)
		if _, ok := index[col]; !ok {
			index[col] = len(ds.Columns)
			ds.Columns = append(ds.Columns, col)
			for i := range ds.Rows {
				ds.Rows[i] = append(ds.Rows[i], nil)
			}
		}
	}

	values := make([]any, len(ds.Columns))
	for key, value := range row {
		values[index[SanitizeColumn(key)]] = normalizeValue(value)
	}
	ds.Rows = append(ds.Rows, values)
}

// renderChunkText flattens rows into "key: value" lines for embedding.
func renderChunkText(rows []map[string]any) string {
	var lines []string
	for _, row := range rows {
		var parts []string
		for _, key := range sortedKeys(row) {
			value := normalizeValue(row[key])
			if value == nil {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %v", key, value))
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, ", "))
		}
	}
	return strings.Join(lines, "\n")
}

// SanitizeColumn rewrites characters that break SQL identifiers.
func SanitizeColumn(name string) string {
	replacer := strings.NewReplacer("/", "_", " ", "_", "-", "_")
	return strings.TrimSpace(replacer.Replace(name))
}

// TableNameFromPath derives a safe table name from a file stem.
func TableNameFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := SanitizeColumn(stem)
	if name == "" {
		return "main_table"
	}
	return name
}

func normalizeValue(v any) any {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
