package model

// ChatInput is the request boundary of the orchestration core.
type ChatInput struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	// GroundTruth is optional reference data for external evaluation. The
	// core passes it through without interpreting it.
	GroundTruth string `json:"ground_truth,omitempty"`
}

// Source is a piece of evidence behind an answer.
type Source struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id,omitempty"`
	Content string `json:"content"`
}

// ChatOutput is the structured result returned for every request, including
// failed ones. Only infrastructure faults surface as errors instead.
type ChatOutput struct {
	Answer    string             `json:"answer"`
	Sources   []*Source          `json:"sources"`
	Timing    map[string]float64 `json:"timing"`
	SQLQuery  string             `json:"sql_query,omitempty"`
	RawResult string             `json:"raw_result,omitempty"`
	Trace     []*StrategyAttempt `json:"trace"`
}
