package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
)

const routePolicyQuery = "data.authz.routes.allow"

// Route policy: a route without requirements is open to every authenticated
// session; otherwise any one of the listed grants is enough.
const routeRegoPolicy = `package authz.routes

default allow := false

allow if {
	count(object.get(data.routes, input.route, [])) == 0
}

allow if {
	some required in data.routes[input.route]
	required in input.grants
}
`

// OPAEvaluator evaluates the route grant policy with OPA Rego. The query is
// prepared once; the route table is loaded into the in-memory store.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	routes map[string][]string
}

// NewOPAEvaluator compiles the route policy over routes (route -> grants, any of which admits).
func NewOPAEvaluator(ctx context.Context, routes map[string][]string) (*OPAEvaluator, error) {
	data := make(map[string]interface{}, len(routes))
	for route, grants := range routes {
		data[route] = toValues(grants)
	}
	store := inmem.NewFromObject(map[string]interface{}{"routes": data})
	query, err := rego.New(
		rego.Query(routePolicyQuery),
		rego.Module("routes.rego", routeRegoPolicy),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare route policy: %w", err)
	}
	copied := make(map[string][]string, len(routes))
	for route, grants := range routes {
		copied[route] = slices.Clone(grants)
	}
	return &OPAEvaluator{query: query, routes: copied}, nil
}

// Authorize evaluates the route policy for grants.
func (e *OPAEvaluator) Authorize(ctx context.Context, route string, grants []string) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"route":  route,
		"grants": toValues(grants),
	}))
	if err != nil {
		return false, fmt.Errorf("eval route policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("route policy query returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("route policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

// Routes returns the routes that carry grant requirements, sorted.
func (e *OPAEvaluator) Routes() []string {
	return slices.Sorted(maps.Keys(e.routes))
}

// HealthCheck verifies that the prepared policy still evaluates. Does not touch any database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Authorize(ctx, "GET /healthcheck", nil)
	return err
}

func toValues(grants []string) []interface{} {
	out := make([]interface{}, 0, len(grants))
	for _, g := range grants {
		out = append(out, g)
	}
	return out
}
