// Package freshness decides when a stored price is too old to trust.
// The scheduler uses it to build work lists and the merge engine uses
// it to derive entry status, so the two can never drift apart.
package freshness

import (
	"time"

	"github.com/bluewater-supply/partsync/internal/model"
)

// DefaultMaxAge is how long a fetched price stays trustworthy.
const DefaultMaxAge = 7 * 24 * time.Hour

// Policy is a pure staleness rule keyed on a single max-age duration.
type Policy struct {
	MaxAge time.Duration
}

// NewPolicy returns a policy with the given max age, falling back to
// DefaultMaxAge when maxAge is not positive.
func NewPolicy(maxAge time.Duration) Policy {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return Policy{MaxAge: maxAge}
}

// NeedsRefresh reports whether a part needs a new price lookup: the
// prior entry is absent, has no price, or its price is stale.
func (p Policy) NeedsRefresh(prior *model.ReconciledEntry, now time.Time) bool {
	if prior == nil || prior.UnitPrice == nil || prior.LastUpdated == nil {
		return true
	}
	return p.Stale(*prior.LastUpdated, now)
}

// Stale reports whether a price fetched at the given time has aged
// past the threshold.
func (p Policy) Stale(lastUpdated, now time.Time) bool {
	return now.Sub(lastUpdated) > p.MaxAge
}
