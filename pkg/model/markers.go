package model

// Canonical marker strings. The orchestrator's validity rules and the
// retrieval summary prompt depend on these exact values, so they live here
// rather than inside prompt templates.
const (
	// PrefixSQLError starts the answer of a structured query attempt whose
	// execution failed.
	PrefixSQLError = "SQL execution error: "

	// AnswerNoValidSQL is returned when no candidate produced any query text.
	AnswerNoValidSQL = "unable to generate a valid SQL query"

	// MarkerEmptyResult is the raw result text of a query that returned no
	// rows. An answer phrased over such a result is treated as invalid.
	MarkerEmptyResult = "query returned no rows"

	// AnswerNoKnowledge is the fixed reply when the knowledge base cannot
	// answer. The summary prompt instructs the model to return it verbatim.
	AnswerNoKnowledge = "no answer could be found in the knowledge base"

	// MarkerNoClues is what the judgment prompt tells the model to put in
	// CLUES when the current batch contributed nothing new.
	MarkerNoClues = "no new clues"
)
