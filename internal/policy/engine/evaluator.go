package engine

import "context"

// Evaluator decides whether a set of grants may call a route.
type Evaluator interface {
	// Authorize reports whether grants satisfy the requirements of route ("METHOD /path").
	// An error means the policy could not be evaluated and must not be read as a denial.
	Authorize(ctx context.Context, route string, grants []string) (bool, error)
}
