package params

import (
	"errors"
	"fmt"
)

// ErrMissingKey is wrapped by ParseError when a required key is absent.
var ErrMissingKey = errors.New("required key missing")

// ErrInvalid is wrapped when parameters violate an acquisition invariant.
var ErrInvalid = errors.New("invalid acquisition parameters")

// ParseError reports a malformed parameter table or a required key that is
// absent when consumed.
type ParseError struct {
	Path string // Source file, empty for in-memory parameters
	Line int    // 1-based line number, 0 if not line specific
	Key  string // Offending key, if known
	Err  error
}

func (e *ParseError) Error() string {
	msg := "params"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(":%d", e.Line)
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (%s)", e.Key)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
