// Package lookup defines the vendor price lookup contract used by the
// fetch scheduler. Outcomes are values, not errors: a lookup that
// reaches the portal and learns something (a price, a missing part, a
// throttle) returns a Result, and the error return is reserved for
// conditions that must abort the run.
package lookup

import "context"

// Code classifies a single lookup attempt.
type Code string

const (
	// CodeFound means the portal returned a price.
	CodeFound Code = "found"
	// CodeNotFound means the portal does not list the part.
	CodeNotFound Code = "not_found"
	// CodeNetwork covers transport failures and portal-side errors.
	CodeNetwork Code = "network"
	// CodeRateLimited means the portal asked us to slow down.
	CodeRateLimited Code = "rate_limited"
	// CodeInvalid means the portal answered but the response failed
	// validation, such as an unparseable price cell.
	CodeInvalid Code = "invalid"
)

// Result is the outcome of one lookup attempt.
type Result struct {
	PartNumber string
	Code       Code
	// UnitPrice is set only when Code is CodeFound.
	UnitPrice float64
	// Detail carries the failure description for non-found codes.
	Detail string
}

// Retryable reports whether another attempt could change the outcome.
// Missing parts and invalid responses are definitive; transport
// failures and throttles are not.
func (r Result) Retryable() bool {
	return r.Code == CodeNetwork || r.Code == CodeRateLimited
}

// Client performs vendor price lookups.
//
// Lookup returns an error only for fatal conditions: context
// cancellation and authentication failures. Everything else comes back
// as a Result.
type Client interface {
	Lookup(ctx context.Context, partNumber string) (Result, error)
}
