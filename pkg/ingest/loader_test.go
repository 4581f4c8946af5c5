package ingest_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/duet/pkg/ingest"
)

func TestParseChunkedFormat(t *testing.T) {
	data := []byte(`[
		{"c8c2a1": {"doc_id": "doc-1", "chunk_id": "chunk-1", "content": [
			{"name": "Alice", "dept name": "Engineering"},
			{"name": "Bob", "dept name": "Sales"}
		]}},
		{"d91b02": {"doc_id": "doc-1", "chunk_id": "chunk-2", "content": [
			{"name": "Carol", "dept name": "Support", "note": "on leave"}
		]}}
	]`)

	ds, err := ingest.Parse(data, "employees")
	gt.NoError(t, err)

	gt.Equal(t, ds.Table, "employees")
	gt.Equal(t, ds.Columns, []string{"dept_name", "name", "note"})
	gt.Equal(t, len(ds.Rows), 3)

	// Rows seen before the "note" column appeared are backfilled with NULL.
	gt.Equal(t, len(ds.Rows[0]), 3)
	gt.Equal(t, ds.Rows[0][2], nil)
	gt.Equal(t, ds.Rows[2][2], any("on leave"))

	gt.Equal(t, len(ds.Chunks), 2)
	gt.Equal(t, ds.Chunks[0].ID, "chunk-1")
	gt.Equal(t, ds.Chunks[0].DocID, "doc-1")
	gt.S(t, ds.Chunks[0].Content).Contains("name: Alice")
	gt.S(t, ds.Chunks[0].Content).Contains("dept name: Engineering")
}

func TestParseChunkedFormatFallbackID(t *testing.T) {
	data := []byte(`[
		{"key-123": {"doc_id": "doc-9", "content": [{"name": "Alice"}]}}
	]`)

	ds, err := ingest.Parse(data, "t")
	gt.NoError(t, err)
	gt.Equal(t, len(ds.Chunks), 1)
	gt.Equal(t, ds.Chunks[0].ID, "key-123")
}

func TestParseFlatFormat(t *testing.T) {
	data := []byte(`[
		{"id": 1, "status": "open"},
		{"id": 2, "status": "closed", "owner": "Bob"}
	]`)

	ds, err := ingest.Parse(data, "tickets")
	gt.NoError(t, err)

	gt.Equal(t, ds.Columns, []string{"id", "status", "owner"})
	gt.Equal(t, len(ds.Rows), 2)
	gt.Equal(t, len(ds.Chunks), 2)
	gt.Equal(t, ds.Chunks[0].ID, "tickets-0")
	gt.Equal(t, ds.Chunks[0].DocID, "tickets")
	gt.S(t, ds.Chunks[1].Content).Contains("owner: Bob")
}

func TestParseBlankStringsBecomeNull(t *testing.T) {
	data := []byte(`[{"name": "Alice", "note": "  "}]`)

	ds, err := ingest.Parse(data, "t")
	gt.NoError(t, err)
	gt.Equal(t, ds.Rows[0][1], nil)
	gt.S(t, ds.Chunks[0].Content).NotContains("note")
}

func TestParseRejectsEmptyOrMalformed(t *testing.T) {
	_, err := ingest.Parse([]byte(`[]`), "t")
	gt.Error(t, err)

	_, err = ingest.Parse([]byte(`{"not": "an array"}`), "t")
	gt.Error(t, err)
}

func TestSanitizeColumn(t *testing.T) {
	gt.Equal(t, ingest.SanitizeColumn("dept name"), "dept_name")
	gt.Equal(t, ingest.SanitizeColumn("a/b-c"), "a_b_c")
}

func TestTableNameFromPath(t *testing.T) {
	gt.Equal(t, ingest.TableNameFromPath("/tmp/data/employee list.json"), "employee_list")
	gt.Equal(t, ingest.TableNameFromPath("records.json"), "records")
}
