package model

// Chunk is a retrievable unit of unstructured content owned by the vector
// index. This core only reads chunks, never mutates them.
type Chunk struct {
	ID      string  `json:"chunk_id"`
	DocID   string  `json:"doc_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// JudgmentStatus is the decoded verdict of one retrieval round.
type JudgmentStatus string

const (
	JudgmentSolved     JudgmentStatus = "SOLVED"
	JudgmentSearchMore JudgmentStatus = "SEARCH_MORE"
	JudgmentGiveUp     JudgmentStatus = "GIVE_UP"
	// JudgmentNoDocs marks a round that yielded no unseen chunks, so no
	// judgment call was made.
	JudgmentNoDocs JudgmentStatus = "NO_DOCS"
	// JudgmentMalformed marks a reply that did not match the STATUS wire
	// format. The controller treats it with give-up semantics.
	JudgmentMalformed JudgmentStatus = "MALFORMED"
)

// SearchState is the terminal state of an iterative search.
type SearchState string

const (
	SearchSolved    SearchState = "SOLVED"
	SearchGiveUp    SearchState = "GIVE_UP"
	SearchNoDocs    SearchState = "NO_DOCS"
	SearchExhausted SearchState = "EXHAUSTED"
)

// RetrievalRound is the trace record of one retrieve/judge/refine round.
type RetrievalRound struct {
	Index     int            `json:"index"`
	Query     string         `json:"query"`
	ChunkIDs  []string       `json:"chunk_ids"`
	Status    JudgmentStatus `json:"status"`
	Clues     string         `json:"clues,omitempty"`
	NextQuery string         `json:"next_query,omitempty"`
}

// RAGOutcome is the result of the iterative retrieval controller.
type RAGOutcome struct {
	Answer string            `json:"answer"`
	State  SearchState       `json:"state"`
	Rounds []*RetrievalRound `json:"rounds"`
	// Sources lists every chunk consumed across all rounds, in retrieval
	// order. The dedup invariant guarantees no chunk appears twice.
	Sources []*Source          `json:"sources"`
	Timing  map[string]float64 `json:"timing,omitempty"`
	// GroundTruth is carried through untouched for downstream evaluators.
	GroundTruth string `json:"ground_truth,omitempty"`
}
