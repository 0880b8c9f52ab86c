package geocode

import (
	"context"
	"errors"
)

// ErrNoMatch is returned by a provider when the query resolves to nothing.
// Any other error indicates a provider failure (timeout, rate limit, bad
// response) and is worth retrying against a fallback provider.
var ErrNoMatch = errors.New("geocode: no match")

// Candidate is a single provider match.
type Candidate struct {
	DisplayName string
	Lat         float64
	Lng         float64
	Confidence  float64
}

// Provider geocodes a free-text location query. Implementations must respect
// their service's rate limits and honor ctx cancellation. They return
// candidates in rank order, best first, with at most two entries: a second
// entry signals ambiguity to the resolver.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, query, locale string) ([]Candidate, error)
}
