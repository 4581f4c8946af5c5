package orchestrate

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/duet/pkg/model"
)

//go:embed prompt/intent.md
var intentPromptRaw string

var intentPromptTmpl = template.Must(template.New("intent").Parse(intentPromptRaw))

// classifyIntent asks the completion service for the initial strategy. The
// caller collapses any error into the RAG default; keeping the error out of
// this function's control flow makes the default path testable on its own.
func (x *Orchestrator) classifyIntent(ctx context.Context, question string) (model.Strategy, error) {
	var buf bytes.Buffer
	err := intentPromptTmpl.Execute(&buf, map[string]any{
		"Scenario": x.scenario,
		"Question": question,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to render intent prompt")
	}

	reply, err := x.gemini.GenerateText(ctx, "", buf.String())
	if err != nil {
		return "", goerr.Wrap(err, "intent classification failed")
	}

	if strings.Contains(strings.ToUpper(strings.TrimSpace(reply)), "SQL") {
		return model.StrategySQL, nil
	}
	return model.StrategyRAG, nil
}
