// Package guard gates generated SQL behind a Rego policy before it reaches
// the tabular store. The policy only sees the query text; correctness of the
// query is out of scope, this is purely a read-only enforcement.
package guard

import (
	"context"
	_ "embed"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed policy/query.rego
var queryPolicyRaw string

type Guard struct {
	query *rego.PreparedEvalQuery
}

func New(ctx context.Context) (*Guard, error) {
	r := rego.New(
		rego.Query("data.query.allow"),
		rego.Module("query.rego", queryPolicyRaw),
	)

	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare query policy")
	}

	return &Guard{query: &prepared}, nil
}

// Allow reports whether the generated query text may be executed.
func (g *Guard) Allow(ctx context.Context, query string) (bool, error) {
	results, err := g.query.Eval(ctx, rego.EvalInput(map[string]any{
		"query": query,
	}))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate query policy")
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, goerr.New("query policy returned a non-boolean decision")
	}

	return allowed, nil
}
