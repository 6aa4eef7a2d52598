package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine compiles and evaluates Rego policies.
type Engine struct {
	mu       sync.RWMutex
	policies []preparedPolicy
	logger   zerolog.Logger
}

type preparedPolicy struct {
	policy Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates an engine preloaded with the built-in policies.
func NewEngine(ctx context.Context, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		logger: logger.With().Str("component", "policy").Logger(),
	}
	for _, p := range BuiltinPolicies() {
		if err := e.AddPolicy(ctx, p); err != nil {
			return nil, fmt.Errorf("loading built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// AddPolicy compiles a policy and registers it for evaluation.
func (e *Engine) AddPolicy(ctx context.Context, p Policy) error {
	query, err := rego.New(
		rego.Query("data.gridci.deny"),
		rego.Module(p.Name+".rego", p.Source),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("compiling policy %s: %w", p.Name, err)
	}

	e.mu.Lock()
	e.policies = append(e.policies, preparedPolicy{policy: p, query: query})
	e.mu.Unlock()

	e.logger.Debug().Str("policy", p.Name).Bool("builtin", p.Builtin).Msg("policy registered")
	return nil
}

// Evaluate runs every registered policy against the input document.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true}
	for _, pp := range e.policies {
		rs, err := pp.query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, fmt.Errorf("evaluating policy %s: %w", pp.policy.Name, err)
		}

		for _, msg := range denialMessages(rs) {
			result.Allowed = false
			result.Violations = append(result.Violations, Violation{
				Policy:  pp.policy.Name,
				Message: msg,
			})
		}
	}

	if !result.Allowed {
		e.logger.Warn().Int("violations", len(result.Violations)).Msg("matrix denied by policy")
	}
	return result, nil
}

// denialMessages flattens the deny set from a result set.
func denialMessages(rs rego.ResultSet) []string {
	var msgs []string
	for _, res := range rs {
		for _, expr := range res.Expressions {
			values, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, v := range values {
				if s, ok := v.(string); ok {
					msgs = append(msgs, s)
				}
			}
		}
	}
	return msgs
}
