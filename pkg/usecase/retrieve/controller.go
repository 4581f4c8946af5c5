// Package retrieve implements the iterative evidence-gathering loop over the
// vector index: retrieve a batch, let the completion service judge it, and
// either answer, refine the query, or give up.
package retrieve

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/duet/pkg/adapter"
	"github.com/m-mizutani/duet/pkg/model"
	"github.com/m-mizutani/duet/pkg/utils/logging"
	"github.com/m-mizutani/duet/pkg/utils/timing"
)

//go:embed prompt/judge_system.md
var judgeSystemPromptRaw string

//go:embed prompt/judge_user.md
var judgeUserPromptRaw string

//go:embed prompt/summary.md
var summaryPromptRaw string

var (
	judgeUserPromptTmpl = template.Must(template.New("judge_user").Parse(judgeUserPromptRaw))
	summaryPromptTmpl   = template.Must(template.New("summary").Parse(summaryPromptRaw))
)

const (
	// DefaultMaxRounds bounds the retrieve/judge/refine loop.
	DefaultMaxRounds = 5
	// DefaultBatchSize is the number of unseen chunks consumed per round.
	// Each search over-fetches twice this to survive dedup losses.
	DefaultBatchSize = 5
)

type Controller struct {
	gemini    adapter.Gemini
	index     adapter.VectorIndex
	maxRounds int
	batchSize int
}

type ControllerOption func(*Controller)

func WithMaxRounds(n int) ControllerOption {
	return func(c *Controller) {
		c.maxRounds = n
	}
}

func WithBatchSize(n int) ControllerOption {
	return func(c *Controller) {
		c.batchSize = n
	}
}

func New(gemini adapter.Gemini, index adapter.VectorIndex, opts ...ControllerOption) *Controller {
	c := &Controller{
		gemini:    gemini,
		index:     index,
		maxRounds: DefaultMaxRounds,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs the iterative retrieval state machine. A chunk is consumed by
// at most one round; the seen-set spans the whole search. Search returns an
// error only when the vector index itself fails (infrastructure fault);
// judgment and summary failures degrade to give-up semantics.
func (c *Controller) Search(ctx context.Context, question, history, groundTruth string) (*model.RAGOutcome, error) {
	logger := logging.From(ctx)
	tracker := timing.New()

	outcome := &model.RAGOutcome{
		// A search that runs out of rounds without a terminal judgment ends
		// here; every other path overwrites the state explicitly.
		State:       model.SearchExhausted,
		GroundTruth: groundTruth,
	}

	seen := make(map[string]struct{})
	var clues strings.Builder
	currentQuery := question
	solved := false

rounds:
	for roundIdx := 1; roundIdx <= c.maxRounds; roundIdx++ {
		round := &model.RetrievalRound{Index: roundIdx, Query: currentQuery}
		outcome.Rounds = append(outcome.Rounds, round)

		stopSearch := tracker.Phase(fmt.Sprintf("round%d_search_ms", roundIdx))
		retrieved, err := c.index.Search(ctx, currentQuery, c.batchSize*2)
		stopSearch()
		if err != nil {
			return nil, goerr.Wrap(err, "vector search failed", goerr.V("query", currentQuery))
		}

		batch := make([]*model.Chunk, 0, c.batchSize)
		for _, chunk := range retrieved {
			if _, ok := seen[chunk.ID]; ok {
				continue
			}
			seen[chunk.ID] = struct{}{}
			batch = append(batch, chunk)
			if len(batch) >= c.batchSize {
				break
			}
		}

		if len(batch) == 0 {
			round.Status = model.JudgmentNoDocs
			if roundIdx == 1 {
				// Nothing in the knowledge base matches at all; skip the
				// summary step and answer with the fixed marker.
				outcome.State = model.SearchNoDocs
				outcome.Answer = model.AnswerNoKnowledge
				outcome.Timing = tracker.Timings()
				return outcome, nil
			}
			outcome.State = model.SearchExhausted
			break rounds
		}

		contexts := make([]string, 0, len(batch))
		for _, chunk := range batch {
			round.ChunkIDs = append(round.ChunkIDs, chunk.ID)
			contexts = append(contexts, chunk.Content)
			outcome.Sources = append(outcome.Sources, &model.Source{
				ChunkID: chunk.ID,
				DocID:   chunk.DocID,
				Content: chunk.Content,
			})
		}

		stopJudge := tracker.Phase(fmt.Sprintf("round%d_judge_ms", roundIdx))
		j := c.judge(ctx, question, clues.String(), history, contexts)
		stopJudge()

		round.Status = j.Status
		round.Clues = j.Clues
		round.NextQuery = j.NextQuery

		switch j.Status {
		case model.JudgmentSolved:
			outcome.Answer = j.Content
			outcome.State = model.SearchSolved
			solved = true
			break rounds

		case model.JudgmentSearchMore:
			appendClues(&clues, roundIdx, j.Clues)
			if len(strings.TrimSpace(j.NextQuery)) > 1 {
				currentQuery = j.NextQuery
				continue
			}
			logger.Warn("no usable next query, stopping search", "round", roundIdx)
			outcome.State = model.SearchExhausted
			break rounds

		default: // GIVE_UP or malformed reply
			appendClues(&clues, roundIdx, j.Clues)
			outcome.State = model.SearchGiveUp
			break rounds
		}
	}

	if !solved {
		stopSummary := tracker.Phase("final_summary_ms")
		answer, err := c.summarize(ctx, question, history, clues.String())
		stopSummary()

		if err != nil {
			logger.Warn("final summary failed", "error", err)
			answer = model.AnswerNoKnowledge
		}
		outcome.Answer = answer
	}

	outcome.Timing = tracker.Timings()
	return outcome, nil
}

// judge classifies one batch. A completion failure is not fatal: it decays
// into a give-up judgment so the search terminates cleanly.
func (c *Controller) judge(ctx context.Context, question, clues, history string, contexts []string) *judgment {
	logger := logging.From(ctx)

	var contextBlock strings.Builder
	for i, text := range contexts {
		fmt.Fprintf(&contextBlock, "--- Doc %d ---\n%s\n", i+1, text)
	}

	var buf bytes.Buffer
	err := judgeUserPromptTmpl.Execute(&buf, map[string]any{
		"History":       history,
		"Question":      question,
		"Clues":         clues,
		"ContextBlock":  contextBlock.String(),
		"NoCluesMarker": model.MarkerNoClues,
	})
	if err != nil {
		logger.Warn("failed to render judgment prompt", "error", err)
		return &judgment{Status: model.JudgmentGiveUp}
	}

	reply, err := c.gemini.GenerateText(ctx, judgeSystemPromptRaw, buf.String())
	if err != nil {
		logger.Warn("batch judgment failed", "error", err)
		return &judgment{Status: model.JudgmentGiveUp}
	}

	return parseJudgment(reply)
}

func (c *Controller) summarize(ctx context.Context, question, history, clues string) (string, error) {
	var buf bytes.Buffer
	err := summaryPromptTmpl.Execute(&buf, map[string]any{
		"History":           history,
		"Question":          question,
		"Clues":             clues,
		"NoKnowledgeMarker": model.AnswerNoKnowledge,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to render summary prompt")
	}

	answer, err := c.gemini.GenerateText(ctx, "", buf.String())
	if err != nil {
		return "", goerr.Wrap(err, "summary generation failed")
	}

	return strings.TrimSpace(answer), nil
}

func appendClues(clues *strings.Builder, round int, text string) {
	text = strings.TrimSpace(text)
	if text == "" || strings.Contains(text, model.MarkerNoClues) {
		return
	}
	fmt.Fprintf(clues, "\n[Round %d clues]: %s", round, text)
}
