package kb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested draft or article does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotPublishable is returned when a draft exists but is no longer pending
// review. It wraps ErrNotFound so callers treating both as "not found or
// already processed" can match either.
var ErrNotPublishable = fmt.Errorf("%w: draft is not pending review", ErrNotFound)

// ValidationError reports required approval fields that were missing.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}
