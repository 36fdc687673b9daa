package parser

import (
	"errors"
	"fmt"
)

// ErrMalformed reports input that does not have the shape of an EXPLAIN JSON document.
var ErrMalformed = errors.New("could not parse execution plan")

// ErrUnknownFormat reports an Options.Format outside json, text, xml and yaml.
var ErrUnknownFormat = errors.New("unknown plan format")

// MalformedError carries the location of the first structural problem found.
type MalformedError struct {
	Location string
	Err      error
}

func (e *MalformedError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("%s: %v", ErrMalformed, e.Err)
	}
	return fmt.Sprintf("%s at %s: %v", ErrMalformed, e.Location, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func malformed(location string, format string, args ...any) error {
	return &MalformedError{Location: location, Err: fmt.Errorf(format, args...)}
}
