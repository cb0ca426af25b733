// Package partnum normalizes and validates Cascade part numbers.
package partnum

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Catalog part numbers come in three shapes: 4+3 digits (6000-125),
// 4+2 digits (6000-12), and a letter-prefixed 4+3 form (B6000-125).
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{3}$`),
	regexp.MustCompile(`^\d{4}-\d{2}$`),
	regexp.MustCompile(`^[A-Z]\d{4}-\d{3}$`),
}

// Normalize trims surrounding whitespace and uppercases a raw part
// number token.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Valid reports whether a normalized part number matches one of the
// catalog shapes.
func Valid(s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Validate returns a descriptive error when the part number fails
// format validation. Called before any network lookup.
func Validate(s string) error {
	if s == "" {
		return eris.New("empty part number")
	}
	if !Valid(s) {
		return eris.Errorf("part number %q does not match any catalog pattern", s)
	}
	return nil
}
