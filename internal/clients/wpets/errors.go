package wpets

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks a 404 on a single petition fetch. Never retried.
var ErrNotFound = errors.New("petition not found")

// TransportError is any non-2xx, non-404 remote response, or a fully
// exhausted bulk operation with zero successes.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d from %s", e.Op, e.StatusCode, e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": transport error"
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is raised before any network call when a query parameter
// is outside its allow-list.
type ValidationError struct {
	Param   string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s param: %q, valid values: %s",
		e.Param, e.Value, strings.Join(e.Allowed, ", "))
}
