// Package gatewayerr defines the closed set of error kinds the router and
// adapters can fail with. Transport front-ends (HTTP, gRPC) translate a
// Kind into their own status space at the boundary — the core never knows
// about HTTP status codes or gRPC codes.
package gatewayerr

import (
	"errors"
	"fmt"
)

// Kind is one of the transport-neutral failure categories from the gateway
// design. Every error that crosses a component boundary inside the router
// should be classifiable as one of these.
type Kind int

const (
	// KindUnknown is never produced intentionally — seeing it means a
	// component returned a plain error instead of wrapping it with a Kind.
	KindUnknown Kind = iota
	KindInvalidRequest
	KindNotAuthenticated
	KindRateLimited
	KindBreakerOpen
	KindNoProviderAvailable
	KindProviderError
	KindUnsupportedCapability
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindRateLimited:
		return "rate_limited"
	case KindBreakerOpen:
		return "breaker_open"
	case KindNoProviderAvailable:
		return "no_provider_available"
	case KindProviderError:
		return "provider_error"
	case KindUnsupportedCapability:
		return "unsupported_capability"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind, the way a handler needs to
// decide which HTTP status or gRPC code to answer with.
type Error struct {
	Kind Kind
	Op   string // component/operation that produced the error, e.g. "router.route"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// As extracts the Kind of err if it (or something it wraps) is a *Error.
// Callers that just want the classification without the chain should use
// this instead of a raw type assertion.
func As(err error) (Kind, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return KindUnknown, false
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	k, ok := As(err)
	return ok && k == kind
}
