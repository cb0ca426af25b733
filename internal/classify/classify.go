// Package classify maps raw failure signals from catalog extraction
// and price lookups onto the fixed error taxonomy, and accumulates the
// per-run error report.
package classify

import (
	"github.com/bluewater-supply/partsync/internal/lookup"
	"github.com/bluewater-supply/partsync/internal/model"
)

// Plausibility bounds for a fetched unit price. Values outside the
// range are treated as validation failures, not prices.
const (
	MinUnitPrice = 0.01
	MaxUnitPrice = 10000.00
)

// Signal is one raw failure observation awaiting classification.
type Signal struct {
	PartNumber string
	// PageCorrupt marks a catalog page that could not be extracted.
	PageCorrupt bool
	// InvalidFormat marks a part number that failed grammar checks
	// before any lookup was attempted.
	InvalidFormat bool
	// LookupCode is the terminal lookup outcome, when a lookup ran.
	LookupCode lookup.Code
	Detail     string
}

// The rules are evaluated in order; the first match decides the type.
var rules = []struct {
	match func(Signal) bool
	typ   model.ErrorType
}{
	{func(s Signal) bool { return s.PageCorrupt }, model.ErrorPDFParse},
	{func(s Signal) bool { return s.LookupCode == lookup.CodeNotFound }, model.ErrorNotFound},
	{func(s Signal) bool { return s.LookupCode == lookup.CodeNetwork }, model.ErrorNetwork},
	{func(s Signal) bool { return s.InvalidFormat || s.LookupCode == lookup.CodeInvalid }, model.ErrorValidation},
	{func(s Signal) bool { return s.LookupCode == lookup.CodeRateLimited }, model.ErrorRateLimited},
}

// Classify maps a signal to exactly one taxonomy type. Signals nothing
// matches fall back to network, the broadest transport bucket.
func Classify(sig Signal) model.ErrorType {
	for _, r := range rules {
		if r.match(sig) {
			return r.typ
		}
	}
	return model.ErrorNetwork
}

// ValidPrice reports whether a fetched unit price is plausible.
func ValidPrice(p float64) bool {
	return p >= MinUnitPrice && p <= MaxUnitPrice
}
