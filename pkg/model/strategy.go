package model

// Strategy is a way of attempting to answer a question: structured query
// against the tabular store, or retrieval over the vector index.
type Strategy string

const (
	StrategySQL Strategy = "SQL"
	StrategyRAG Strategy = "RAG"
)

// Complement returns the other strategy. The execution plan for a request is
// always [initial, initial.Complement()].
func (s Strategy) Complement() Strategy {
	if s == StrategySQL {
		return StrategyRAG
	}
	return StrategySQL
}

// StrategyAttempt is the record of one strategy execution within a request.
// Exactly one of SQL / RAG is set, matching Strategy.
type StrategyAttempt struct {
	Strategy Strategy           `json:"strategy"`
	Answer   string             `json:"answer"`
	Valid    bool               `json:"valid"`
	Timing   map[string]float64 `json:"timing,omitempty"`

	SQL *SQLOutcome `json:"sql,omitempty"`
	RAG *RAGOutcome `json:"rag,omitempty"`
}
