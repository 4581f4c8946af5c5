package model

// SQLAttemptOutcome classifies one generate/execute attempt by outcome shape.
type SQLAttemptOutcome string

const (
	// SQLAttemptSuccess means the query executed and returned at least one row.
	SQLAttemptSuccess SQLAttemptOutcome = "SUCCESS"
	// SQLAttemptEmpty means the query executed but returned zero rows.
	SQLAttemptEmpty SQLAttemptOutcome = "EMPTY"
	// SQLAttemptError means generation or execution failed.
	SQLAttemptError SQLAttemptOutcome = "ERROR"
)

// SQLAttempt is the trace record of one candidate-column attempt.
type SQLAttempt struct {
	Index      int               `json:"index"`
	ColumnHint string            `json:"column_hint,omitempty"`
	Query      string            `json:"query,omitempty"`
	Outcome    SQLAttemptOutcome `json:"outcome"`
	RowCount   int               `json:"row_count"`
	Error      string            `json:"error,omitempty"`
}

// SQLOutcome is the result of the structured query resolver.
type SQLOutcome struct {
	Answer    string             `json:"answer"`
	Query     string             `json:"query,omitempty"`
	RawResult string             `json:"raw_result,omitempty"`
	Attempts  []*SQLAttempt      `json:"attempts"`
	Timing    map[string]float64 `json:"timing,omitempty"`
}
