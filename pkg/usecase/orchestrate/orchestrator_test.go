package orchestrate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/m-mizutani/duet/pkg/adapter"
	"github.com/m-mizutani/duet/pkg/memory"
	"github.com/m-mizutani/duet/pkg/model"
	"github.com/m-mizutani/duet/pkg/usecase/orchestrate"
	"github.com/m-mizutani/duet/pkg/usecase/retrieve"
	"github.com/m-mizutani/duet/pkg/usecase/sqlquery"
)

// mockGemini routes every completion call of the full pipeline by prompt
// text, so one mock drives intent classification, the query resolver and the
// retrieval controller together.
type mockGemini struct {
	intentReply  string
	intentErr    error
	queryReply   string
	queryErr     error
	answerReply  string
	judgeReply   string
	summaryReply string

	queryPrompts []string
}

func (m *mockGemini) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if systemPrompt != "" {
		return m.judgeReply, nil
	}

	switch {
	case strings.Contains(userPrompt, "intent classification assistant"):
		return m.intentReply, m.intentErr
	case strings.Contains(userPrompt, "semantic mapping engine"):
		return `{"candidates": ["name"], "reason": "test"}`, nil
	case strings.Contains(userPrompt, "SQL generation expert"):
		m.queryPrompts = append(m.queryPrompts, userPrompt)
		return m.queryReply, m.queryErr
	case strings.Contains(userPrompt, "natural, fluent language"):
		return m.answerReply, nil
	case strings.Contains(userPrompt, "Try to answer the question based on the clues above"):
		return m.summaryReply, nil
	default:
		return "", errors.New("unexpected prompt")
	}
}

func (m *mockGemini) Embedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

type mockStore struct {
	result *adapter.QueryResult
	err    error
}

func (m *mockStore) TableName() string { return "employees" }
func (m *mockStore) Columns() []string { return []string{"name", "dept_name"} }

func (m *mockStore) Execute(ctx context.Context, query string) (*adapter.QueryResult, error) {
	return m.result, m.err
}

func (m *mockStore) Load(ctx context.Context, table string, columns []string, rows [][]any) error {
	return nil
}

type mockIndex struct {
	chunks []*model.Chunk
}

func (m *mockIndex) Search(ctx context.Context, query string, k int) ([]*model.Chunk, error) {
	return m.chunks, nil
}

func (m *mockIndex) Upsert(ctx context.Context, chunks []*model.Chunk) error { return nil }
func (m *mockIndex) Count(ctx context.Context) (int, error)                  { return len(m.chunks), nil }

func newOrchestrator(gemini *mockGemini, store *mockStore, index *mockIndex) *orchestrate.Orchestrator {
	return orchestrate.New(
		gemini,
		memory.New(),
		sqlquery.New(gemini, store),
		retrieve.New(gemini, index),
	)
}

func chunks(n int) []*model.Chunk {
	out := make([]*model.Chunk, n)
	for i := range out {
		out[i] = &model.Chunk{ID: string(rune('a' + i)), DocID: "doc", Content: "some content"}
	}
	return out
}

func TestChatSQLIntentSucceeds(t *testing.T) {
	gemini := &mockGemini{
		intentReply: "SQL",
		queryReply:  "SELECT name FROM employees",
		answerReply: "There are 3 employees.",
	}
	store := &mockStore{result: &adapter.QueryResult{
		Columns: []string{"name"},
		Rows:    [][]any{{"Alice"}, {"Bob"}, {"Carol"}},
	}}

	x := newOrchestrator(gemini, store, &mockIndex{})
	output, err := x.Chat(t.Context(), &model.ChatInput{
		Question:  "how many employees are there?",
		SessionID: "s1",
	})
	gt.NoError(t, err)

	gt.Equal(t, output.Answer, "There are 3 employees.")
	gt.Equal(t, output.SQLQuery, "SELECT name FROM employees")
	gt.Equal(t, len(output.Trace), 1)
	gt.Equal(t, output.Trace[0].Strategy, model.StrategySQL)
	gt.True(t, output.Trace[0].Valid)
	gt.Equal(t, len(output.Sources), 1)
	gt.Equal(t, output.Sources[0].ChunkID, "SQL")
}

func TestChatFallsBackToRAG(t *testing.T) {
	// The SQL attempt executes but returns no rows, which is invalid; the
	// RAG attempt then solves.
	gemini := &mockGemini{
		intentReply: "SQL",
		queryReply:  "SELECT name FROM employees WHERE dept_name = 'R&D'",
		answerReply: "No matching data was found.",
		judgeReply:  "STATUS: SOLVED\nCONTENT: R&D was merged into Engineering last year.",
	}
	store := &mockStore{result: &adapter.QueryResult{Columns: []string{"name"}}}
	index := &mockIndex{chunks: chunks(3)}

	x := newOrchestrator(gemini, store, index)
	output, err := x.Chat(t.Context(), &model.ChatInput{
		Question:  "who works in R&D?",
		SessionID: "s1",
	})
	gt.NoError(t, err)

	gt.Equal(t, len(output.Trace), 2)
	gt.Equal(t, output.Trace[0].Strategy, model.StrategySQL)
	gt.False(t, output.Trace[0].Valid)
	gt.Equal(t, output.Trace[1].Strategy, model.StrategyRAG)
	gt.True(t, output.Trace[1].Valid)
	gt.Equal(t, output.Answer, "R&D was merged into Engineering last year.")
	gt.Equal(t, len(output.Sources), 3)
}

func TestChatFallsBackToSQL(t *testing.T) {
	// RAG intent first; the index is empty so retrieval answers with the
	// no-knowledge marker, and the SQL fallback wins.
	gemini := &mockGemini{
		intentReply: "RAG",
		queryReply:  "SELECT count(*) FROM employees",
		answerReply: "There are 42 employees.",
	}
	store := &mockStore{result: &adapter.QueryResult{
		Columns: []string{"count"},
		Rows:    [][]any{{int64(42)}},
	}}

	x := newOrchestrator(gemini, store, &mockIndex{})
	output, err := x.Chat(t.Context(), &model.ChatInput{
		Question:  "how many employees?",
		SessionID: "s1",
	})
	gt.NoError(t, err)

	gt.Equal(t, len(output.Trace), 2)
	gt.Equal(t, output.Trace[0].Strategy, model.StrategyRAG)
	gt.False(t, output.Trace[0].Valid)
	gt.Equal(t, output.Trace[1].Strategy, model.StrategySQL)
	gt.True(t, output.Trace[1].Valid)
	gt.Equal(t, output.Answer, "There are 42 employees.")
}

func TestChatBothStrategiesFail(t *testing.T) {
	gemini := &mockGemini{
		intentReply: "SQL",
		queryReply:  "SELECT name FROM employees WHERE id = 999",
		answerReply: "No matching data was found.",
	}
	store := &mockStore{result: &adapter.QueryResult{Columns: []string{"name"}}}

	x := newOrchestrator(gemini, store, &mockIndex{})
	output, err := x.Chat(t.Context(), &model.ChatInput{
		Question:  "who is employee 999?",
		SessionID: "s1",
	})
	gt.NoError(t, err)

	// Exactly two attempts, never more; the last answer is returned even
	// though it is the failure marker.
	gt.Equal(t, len(output.Trace), 2)
	gt.False(t, output.Trace[0].Valid)
	gt.False(t, output.Trace[1].Valid)
	gt.Equal(t, output.Answer, model.AnswerNoKnowledge)
}

func TestChatIntentErrorDefaultsToRAG(t *testing.T) {
	gemini := &mockGemini{
		intentErr:  errors.New("model unavailable"),
		judgeReply: "STATUS: SOLVED\nCONTENT: Here is the answer.",
	}
	index := &mockIndex{chunks: chunks(2)}

	x := newOrchestrator(gemini, &mockStore{}, index)
	output, err := x.Chat(t.Context(), &model.ChatInput{
		Question:  "what is the procedure?",
		SessionID: "s1",
	})
	gt.NoError(t, err)

	gt.Equal(t, output.Trace[0].Strategy, model.StrategyRAG)
	gt.Equal(t, output.Answer, "Here is the answer.")
}

func TestChatHistoryFlowsIntoPrompts(t *testing.T) {
	gemini := &mockGemini{
		intentReply: "SQL",
		queryReply:  "SELECT name FROM employees",
		answerReply: "Alice works here.",
	}
	store := &mockStore{result: &adapter.QueryResult{
		Columns: []string{"name"},
		Rows:    [][]any{{"Alice"}},
	}}

	x := newOrchestrator(gemini, store, &mockIndex{})

	_, err := x.Chat(t.Context(), &model.ChatInput{
		Question:  "who works here?",
		SessionID: "s1",
	})
	gt.NoError(t, err)

	_, err = x.Chat(t.Context(), &model.ChatInput{
		Question:  "and what is her department?",
		SessionID: "s1",
	})
	gt.NoError(t, err)

	// The second question's generation prompt must carry the first turn.
	last := gemini.queryPrompts[len(gemini.queryPrompts)-1]
	gt.S(t, last).Contains("Human: who works here?")
	gt.S(t, last).Contains("AI: Alice works here.")
}

func TestChatSessionsAreIsolated(t *testing.T) {
	gemini := &mockGemini{
		intentReply: "SQL",
		queryReply:  "SELECT name FROM employees",
		answerReply: "Alice works here.",
	}
	store := &mockStore{result: &adapter.QueryResult{
		Columns: []string{"name"},
		Rows:    [][]any{{"Alice"}},
	}}

	x := newOrchestrator(gemini, store, &mockIndex{})

	_, err := x.Chat(t.Context(), &model.ChatInput{
		Question:  "who works here?",
		SessionID: "s1",
	})
	gt.NoError(t, err)

	_, err = x.Chat(t.Context(), &model.ChatInput{
		Question:  "second question",
		SessionID: "s2",
	})
	gt.NoError(t, err)

	last := gemini.queryPrompts[len(gemini.queryPrompts)-1]
	gt.S(t, last).NotContains("who works here?")
}

func TestChatRecordsTimings(t *testing.T) {
	gemini := &mockGemini{
		intentReply: "SQL",
		queryReply:  "SELECT name FROM employees",
		answerReply: "Alice works here.",
	}
	store := &mockStore{result: &adapter.QueryResult{
		Columns: []string{"name"},
		Rows:    [][]any{{"Alice"}},
	}}

	x := newOrchestrator(gemini, store, &mockIndex{})
	output, err := x.Chat(t.Context(), &model.ChatInput{
		Question:  "who works here?",
		SessionID: "s1",
	})
	gt.NoError(t, err)

	for _, key := range []string{"total_ms", "intent_ms", "context_load_ms", "context_save_ms"} {
		if _, ok := output.Timing[key]; !ok {
			t.Errorf("missing timing phase %q", key)
		}
	}
}
