// Package policy decides which host origins may embed a widget.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the embed policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// EmbedInput is the policy input for one frame request.
type EmbedInput struct {
	TenantID       string   `json:"tenant_id"`
	Origin         string   `json:"origin"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.embed_policy.decision"),
		rego.Module("embed_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the policy and returns its decision.
// A policy that produces no decision allows.
func (e *Engine) Evaluate(ctx context.Context, input EmbedInput) (string, error) {
	if input.AllowedOrigins == nil {
		input.AllowedOrigins = []string{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
}

// Allowed reports whether input may embed the widget.
func (e *Engine) Allowed(ctx context.Context, input EmbedInput) (bool, error) {
	decision, err := e.Evaluate(ctx, input)
	if err != nil {
		return false, err
	}
	return decision != DecisionDeny, nil
}

// DefaultPolicy allows every origin unless an allow-list is configured.
// "*" in the list matches any origin.
const DefaultPolicy = `
package embed_policy

default decision = "allow"

decision = "deny" {
	count(input.allowed_origins) > 0
	not origin_allowed
}

origin_allowed {
	input.allowed_origins[_] == input.origin
}

origin_allowed {
	input.allowed_origins[_] == "*"
}
`
