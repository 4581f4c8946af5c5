// Package sqlquery resolves a question against the tabular store: it asks
// the completion service for candidate columns, then runs a bounded
// generate/execute loop until a query returns rows.
package sqlquery

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/duet/pkg/adapter"
	"github.com/m-mizutani/duet/pkg/guard"
	"github.com/m-mizutani/duet/pkg/model"
	"github.com/m-mizutani/duet/pkg/utils/logging"
	"github.com/m-mizutani/duet/pkg/utils/timing"
)

//go:embed prompt/columns.md
var columnsPromptRaw string

//go:embed prompt/generate.md
var generatePromptRaw string

//go:embed prompt/answer.md
var answerPromptRaw string

var (
	columnsPromptTmpl  = template.Must(template.New("columns").Parse(columnsPromptRaw))
	generatePromptTmpl = template.Must(template.New("generate").Parse(generatePromptRaw))
	answerPromptTmpl   = template.Must(template.New("answer").Parse(answerPromptRaw))
)

type Resolver struct {
	gemini adapter.Gemini
	store  adapter.TabularStore
	guard  *guard.Guard
}

type ResolverOption func(*Resolver)

// WithGuard enables the Rego policy gate on generated query text.
func WithGuard(g *guard.Guard) ResolverOption {
	return func(r *Resolver) {
		r.guard = g
	}
}

func New(gemini adapter.Gemini, store adapter.TabularStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		gemini: gemini,
		store:  store,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the candidate-column multi-attempt loop. The first query that
// returns rows wins; the first empty result is kept as a fallback. Resolve
// only returns an error for faults the orchestrator should treat as an
// invalid attempt wholesale (it currently never does).
func (r *Resolver) Resolve(ctx context.Context, question, history string) (*model.SQLOutcome, error) {
	logger := logging.From(ctx)
	tracker := timing.New()
	outcome := &model.SQLOutcome{}

	stopCandidates := tracker.Phase("sql_candidates_ms")
	hints := r.proposeCandidates(ctx, question)
	stopCandidates()

	if len(hints) == 0 {
		// Degenerate to a single attempt without a column hint.
		hints = []string{""}
	}

	var (
		firstEmpty *model.SQLAttempt
		winner     *model.SQLAttempt
		lastError  *model.SQLAttempt
	)

	for i, hint := range hints {
		attempt := &model.SQLAttempt{Index: i, ColumnHint: hint}
		outcome.Attempts = append(outcome.Attempts, attempt)

		stopGenerate := tracker.Phase("sql_generate_ms")
		query, err := r.generateQuery(ctx, question, history, hint)
		stopGenerate()

		if err != nil || query == "" {
			attempt.Outcome = model.SQLAttemptError
			if err != nil {
				attempt.Error = err.Error()
			} else {
				attempt.Error = "no query text generated"
			}
			logger.Warn("query generation failed", "hint", hint, "error", attempt.Error)
			continue
		}
		attempt.Query = query

		if r.guard != nil {
			allowed, err := r.guard.Allow(ctx, query)
			if err != nil || !allowed {
				attempt.Outcome = model.SQLAttemptError
				attempt.Error = "query rejected by policy"
				lastError = attempt
				logger.Warn("generated query rejected by policy", "query", query)
				continue
			}
		}

		stopExecute := tracker.Phase("sql_execute_ms")
		result, err := r.store.Execute(ctx, query)
		stopExecute()

		if err != nil {
			attempt.Outcome = model.SQLAttemptError
			attempt.Error = err.Error()
			lastError = attempt
			logger.Warn("query execution failed", "query", query, "error", err)
			continue
		}

		attempt.RowCount = len(result.Rows)
		if len(result.Rows) == 0 {
			attempt.Outcome = model.SQLAttemptEmpty
			if firstEmpty == nil {
				firstEmpty = attempt
			}
			continue
		}

		attempt.Outcome = model.SQLAttemptSuccess
		winner = attempt
		outcome.Query = query
		outcome.RawResult = formatResult(result)
		break
	}

	switch {
	case winner != nil:
		// Fall through to answer phrasing.

	case firstEmpty != nil:
		outcome.Query = firstEmpty.Query
		outcome.RawResult = model.MarkerEmptyResult

	case lastError != nil:
		outcome.Query = lastError.Query
		outcome.Answer = model.PrefixSQLError + lastError.Error
		outcome.Timing = tracker.Timings()
		return outcome, nil

	default:
		// No candidate produced any query text.
		outcome.Answer = model.AnswerNoValidSQL
		outcome.Timing = tracker.Timings()
		return outcome, nil
	}

	stopAnswer := tracker.Phase("sql_answer_ms")
	answer, err := r.phraseAnswer(ctx, question, outcome.Query, outcome.RawResult)
	stopAnswer()

	if err != nil {
		// The data is already there; degrade to the raw result rather than
		// failing the attempt.
		logger.Warn("answer phrasing failed, returning raw result", "error", err)
		answer = outcome.RawResult
	}

	outcome.Answer = answer
	outcome.Timing = tracker.Timings()
	return outcome, nil
}

type candidateReply struct {
	Candidates []string `json:"candidates"`
	Reason     string   `json:"reason"`
}

func (r *Resolver) proposeCandidates(ctx context.Context, question string) []string {
	logger := logging.From(ctx)

	prompt, err := renderTemplate(columnsPromptTmpl, map[string]any{
		"TableName": r.store.TableName(),
		"Columns":   strings.Join(r.store.Columns(), ", "),
		"Question":  question,
	})
	if err != nil {
		logger.Warn("failed to render column prompt", "error", err)
		return nil
	}

	reply, err := r.gemini.GenerateText(ctx, "", prompt)
	if err != nil {
		logger.Warn("candidate column proposal failed", "error", err)
		return nil
	}

	candidates, err := parseCandidates(reply)
	if err != nil {
		logger.Warn("malformed candidate column reply", "reply", reply, "error", err)
		return nil
	}

	return dedupe(candidates)
}

func (r *Resolver) generateQuery(ctx context.Context, question, history, hint string) (string, error) {
	prompt, err := renderTemplate(generatePromptTmpl, map[string]any{
		"TableName":  r.store.TableName(),
		"Columns":    strings.Join(r.store.Columns(), ", "),
		"History":    history,
		"Question":   question,
		"ColumnHint": hint,
	})
	if err != nil {
		return "", err
	}

	reply, err := r.gemini.GenerateText(ctx, "", prompt)
	if err != nil {
		return "", goerr.Wrap(err, "query generation failed")
	}

	return stripFences(reply), nil
}

func (r *Resolver) phraseAnswer(ctx context.Context, question, query, result string) (string, error) {
	prompt, err := renderTemplate(answerPromptTmpl, map[string]any{
		"Question": question,
		"Query":    query,
		"Result":   result,
	})
	if err != nil {
		return "", err
	}

	answer, err := r.gemini.GenerateText(ctx, "", prompt)
	if err != nil {
		return "", goerr.Wrap(err, "answer phrasing failed")
	}

	return strings.TrimSpace(answer), nil
}

// formatResult renders rows as a pipe-delimited text table, the shape the
// answer prompt expects.
func formatResult(result *adapter.QueryResult) string {
	var sb strings.Builder
	sb.WriteString("SQL query result:\n")
	sb.WriteString(strings.Join(result.Columns, " | "))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 20))
	sb.WriteString("\n")
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render prompt template")
	}
	return buf.String(), nil
}
