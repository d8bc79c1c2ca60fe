// Package grant resolves the authorization grants held by a user.
package grant

import (
	"context"
	"slices"
	"time"
)

// Source lists the grant codes assigned to a user. The user repository implements it.
type Source interface {
	ListGrantCodes(ctx context.Context, userID string) ([]string, error)
}

// Resolver loads a user's grants as a sorted, de-duplicated snapshot.
type Resolver struct {
	src     Source
	timeout time.Duration
}

// NewResolver returns a Resolver reading from src. Each lookup is bounded by
// timeout; zero leaves the caller's deadline in charge.
func NewResolver(src Source, timeout time.Duration) *Resolver {
	return &Resolver{src: src, timeout: timeout}
}

// Resolve returns the grant codes of userID. A user without grants yields an
// empty, non-nil slice.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	codes, err := r.src.ListGrantCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
