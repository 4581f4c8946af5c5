// Package orchestrate routes a question to the structured query resolver or
// the iterative retrieval controller, falls back to the complementary
// strategy when the first attempt produces no valid answer, and maintains
// the per-session conversation window.
package orchestrate

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/duet/pkg/memory"
	"github.com/m-mizutani/duet/pkg/model"
	"github.com/m-mizutani/duet/pkg/usecase/retrieve"
	"github.com/m-mizutani/duet/pkg/usecase/sqlquery"
	"github.com/m-mizutani/duet/pkg/utils/logging"
	"github.com/m-mizutani/duet/pkg/utils/timing"

	"github.com/m-mizutani/duet/pkg/adapter"
)

type Orchestrator struct {
	gemini     adapter.Gemini
	sessions   *memory.Registry
	resolver   *sqlquery.Resolver
	controller *retrieve.Controller
	scenario   string
}

type Option func(*Orchestrator)

// WithScenario labels the dataset in the intent prompt (e.g. "corporate
// contact list").
func WithScenario(scenario string) Option {
	return func(x *Orchestrator) {
		x.scenario = scenario
	}
}

func New(gemini adapter.Gemini, sessions *memory.Registry, resolver *sqlquery.Resolver, controller *retrieve.Controller, opts ...Option) *Orchestrator {
	x := &Orchestrator{
		gemini:     gemini,
		sessions:   sessions,
		resolver:   resolver,
		controller: controller,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Chat answers one question. The whole sequence (history load, strategy
// attempts, turn append) runs under the session lock so concurrent requests
// for the same session never interleave. The returned error is non-nil only
// for infrastructure faults; "no answer found" is a normal result whose
// answer carries the failing marker.
func (x *Orchestrator) Chat(ctx context.Context, input *model.ChatInput) (*model.ChatOutput, error) {
	logger := logging.From(ctx)
	tracker := timing.New()
	stopTotal := tracker.Phase("total_ms")

	output := &model.ChatOutput{}

	err := x.sessions.With(input.SessionID, func(session *model.Session) error {
		stopLoad := tracker.Phase("context_load_ms")
		history := session.Render()
		stopLoad()

		stopIntent := tracker.Phase("intent_ms")
		intent, err := x.classifyIntent(ctx, input.Question)
		stopIntent()
		if err != nil {
			// Fail-safe default, not an error (classification failure class).
			logger.Warn("intent classification failed, defaulting to RAG", "error", err)
			intent = model.StrategyRAG
		}
		logger.Info("intent classified", "intent", intent, "session", input.SessionID)

		plan := []model.Strategy{intent, intent.Complement()}

		var final *model.StrategyAttempt
		for i, strategy := range plan {
			logger.Info("executing strategy", "attempt", i+1, "strategy", strategy)

			attempt, err := x.runStrategy(ctx, strategy, input, history)
			if err != nil {
				return goerr.Wrap(err, "strategy execution failed",
					goerr.V("strategy", strategy))
			}

			attempt.Valid = isValid(attempt)
			tracker.Merge(attempt.Timing)
			output.Trace = append(output.Trace, attempt)
			final = attempt

			if attempt.Valid {
				logger.Info("strategy succeeded", "strategy", strategy)
				break
			}
			logger.Warn("strategy produced no valid answer", "strategy", strategy)
		}

		fillOutput(output, final)

		stopSave := tracker.Phase("context_save_ms")
		if final.Answer != "" {
			// The final answer is recorded even when invalid, so later turns
			// see what was said.
			session.Append(input.Question, final.Answer)
		}
		stopSave()

		return nil
	})
	if err != nil {
		return nil, err
	}

	stopTotal()
	output.Timing = tracker.Timings()
	return output, nil
}

func (x *Orchestrator) runStrategy(ctx context.Context, strategy model.Strategy, input *model.ChatInput, history string) (*model.StrategyAttempt, error) {
	switch strategy {
	case model.StrategySQL:
		outcome, err := x.resolver.Resolve(ctx, input.Question, history)
		if err != nil {
			return nil, err
		}
		return &model.StrategyAttempt{
			Strategy: model.StrategySQL,
			Answer:   outcome.Answer,
			Timing:   outcome.Timing,
			SQL:      outcome,
		}, nil

	case model.StrategyRAG:
		outcome, err := x.controller.Search(ctx, input.Question, history, input.GroundTruth)
		if err != nil {
			return nil, err
		}
		return &model.StrategyAttempt{
			Strategy: model.StrategyRAG,
			Answer:   outcome.Answer,
			Timing:   outcome.Timing,
			RAG:      outcome,
		}, nil

	default:
		return nil, goerr.New("unknown strategy", goerr.V("strategy", strategy))
	}
}

// isValid reproduces the validity rules: an attempt whose answer is any of
// the canonical failure markers is invalid, as is an empty answer.
func isValid(attempt *model.StrategyAttempt) bool {
	if attempt.Answer == "" {
		return false
	}

	switch attempt.Strategy {
	case model.StrategySQL:
		if strings.HasPrefix(attempt.Answer, model.PrefixSQLError) {
			return false
		}
		if attempt.Answer == model.AnswerNoValidSQL {
			return false
		}
		if attempt.SQL != nil {
			if strings.Contains(attempt.SQL.RawResult, model.MarkerEmptyResult) {
				return false
			}
			if attempt.SQL.Query == "" {
				return false
			}
		}
		return true

	case model.StrategyRAG:
		return !strings.Contains(attempt.Answer, model.AnswerNoKnowledge)

	default:
		return false
	}
}

// fillOutput projects the final attempt (valid or not) into the request
// result.
func fillOutput(output *model.ChatOutput, final *model.StrategyAttempt) {
	output.Answer = final.Answer

	switch final.Strategy {
	case model.StrategySQL:
		if final.SQL != nil {
			output.SQLQuery = final.SQL.Query
			output.RawResult = final.SQL.RawResult
			output.Sources = []*model.Source{{
				ChunkID: "SQL",
				Content: "SQL: " + final.SQL.Query + "\nRaw: " + final.SQL.RawResult,
			}}
		}
	case model.StrategyRAG:
		if final.RAG != nil {
			output.Sources = final.RAG.Sources
		}
	}
}
