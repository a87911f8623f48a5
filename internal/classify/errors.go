package classify

import "fmt"

// TransportError covers network failures, timeouts, and non-2xx responses
// from the classifier. The caller fails open: blocking navigation on
// infrastructure outages is worse than a missed detection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("classifier %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError covers malformed classifier responses. Treated identically to
// TransportError at every call site; the distinction exists only for logs.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("classifier response malformed: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
