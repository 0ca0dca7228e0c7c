package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = 100 * time.Millisecond

// PatternError reports a destination that does not compile as a pattern.
type PatternError struct {
	Destination string
	Err         error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid destination pattern %q: %v", e.Destination, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Pattern is a compiled destination. Matching is an unanchored search, so
// "/time" matches "/time" and "/time/utc", and ".*" matches everything.
//
// Destinations without regex metacharacters are matched with a substring
// test and never enter the regex engine.
type Pattern struct {
	source  string
	literal bool
	re      *regexp2.Regexp
}

// Compile compiles destination using ECMAScript regex syntax.
func Compile(destination string) (*Pattern, error) {
	re, err := regexp2.Compile(destination, regexp2.ECMAScript)
	if err != nil {
		return nil, &PatternError{Destination: destination, Err: err}
	}
	re.MatchTimeout = DefaultMatchTimeout

	return &Pattern{
		source:  destination,
		literal: regexp2.Escape(destination) == destination,
		re:      re,
	}, nil
}

// String returns the destination the pattern was compiled from.
func (p *Pattern) String() string { return p.source }

// Literal reports whether the pattern contains no metacharacters.
func (p *Pattern) Literal() bool { return p.literal }

// Match reports whether target contains a match for the pattern. The error
// is non-nil only when evaluation exceeded DefaultMatchTimeout.
func (p *Pattern) Match(target string) (bool, error) {
	if p.literal {
		return strings.Contains(target, p.source), nil
	}
	return p.re.MatchString(target)
}
