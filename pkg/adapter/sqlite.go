package adapter

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore is the default TabularStore: an in-memory SQLite database
// rebuilt wholesale on Load. Execute holds a read lock and Load a write lock
// so a reload never races an in-flight query.
type SQLiteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	table   string
	columns []string
}

func NewSQLite() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open in-memory sqlite")
	}

	// Each pooled connection would get its own :memory: database.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) TableName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

func (s *SQLiteStore) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cols := make([]string, len(s.columns))
	copy(cols, s.columns)
	return cols
}

func (s *SQLiteStore) Execute(ctx context.Context, query string) (*QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "query execution failed", goerr.V("query", query))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read result columns")
	}

	result := &QueryResult{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, goerr.Wrap(err, "failed to scan result row")
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate result rows")
	}

	return result, nil
}

func (s *SQLiteStore) Load(ctx context.Context, table string, columns []string, rows [][]any) error {
	if table == "" {
		return goerr.New("table name is required")
	}
	if len(columns) == 0 {
		return goerr.New("at least one column is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin load transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(table)); err != nil {
		return goerr.Wrap(err, "failed to drop previous table", goerr.V("table", table))
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}
	createStmt := `CREATE TABLE ` + quoteIdent(table) + ` (` + strings.Join(quoted, ", ") + `)`
	if _, err := tx.ExecContext(ctx, createStmt); err != nil {
		return goerr.Wrap(err, "failed to create table", goerr.V("table", table))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	insertStmt := `INSERT INTO ` + quoteIdent(table) + ` VALUES (` + placeholders + `)`
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare insert")
	}
	defer stmt.Close()

	for _, row := range rows {
		values := make([]any, len(columns))
		copy(values, row)
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return goerr.Wrap(err, "failed to insert row", goerr.V("table", table))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit load")
	}

	s.table = table
	s.columns = make([]string, len(columns))
	copy(s.columns, columns)

	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
