package server

import (
	"net/http"

	"github.com/inference-gateway/llmrouter/internal/gatewayerr"
)

// httpStatusForKind maps a transport-neutral gatewayerr.Kind to the HTTP
// status this front-end answers with — the only place in the HTTP server
// that needs to know these kinds exist. internal/rpc does the equivalent
// mapping into grpc codes for the gRPC front-end.
func httpStatusForKind(kind gatewayerr.Kind) int {
	switch kind {
	case gatewayerr.KindInvalidRequest:
		return http.StatusBadRequest
	case gatewayerr.KindNotAuthenticated:
		return http.StatusUnauthorized
	case gatewayerr.KindRateLimited:
		return http.StatusTooManyRequests
	case gatewayerr.KindBreakerOpen, gatewayerr.KindNoProviderAvailable:
		return http.StatusServiceUnavailable
	case gatewayerr.KindProviderError:
		return http.StatusBadGateway
	case gatewayerr.KindUnsupportedCapability:
		return http.StatusNotImplemented
	case gatewayerr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// statusForError classifies err through gatewayerr.As, defaulting to 500
// for anything the router didn't wrap with a Kind.
func statusForError(err error) int {
	kind, ok := gatewayerr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	return httpStatusForKind(kind)
}
