package rpc

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/inference-gateway/llmrouter/internal/gatewayerr"
)

// grpcCodeForKind maps a transport-neutral gatewayerr.Kind to the grpc code
// this front-end answers with — the gRPC peer of internal/server's
// httpStatusForKind.
func grpcCodeForKind(kind gatewayerr.Kind) codes.Code {
	switch kind {
	case gatewayerr.KindInvalidRequest:
		return codes.InvalidArgument
	case gatewayerr.KindNotAuthenticated:
		return codes.Unauthenticated
	case gatewayerr.KindRateLimited:
		return codes.ResourceExhausted
	case gatewayerr.KindBreakerOpen, gatewayerr.KindNoProviderAvailable:
		return codes.Unavailable
	case gatewayerr.KindProviderError:
		return codes.Internal
	case gatewayerr.KindUnsupportedCapability:
		return codes.Unimplemented
	case gatewayerr.KindTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Unknown
	}
}

// statusForError classifies err through gatewayerr.As and wraps it as a
// grpc/status error, defaulting to Unknown for anything the router didn't
// wrap with a Kind.
func statusForError(err error) error {
	if err == nil {
		return nil
	}
	kind, ok := gatewayerr.As(err)
	if !ok {
		return status.Error(codes.Unknown, err.Error())
	}
	return status.Error(grpcCodeForKind(kind), err.Error())
}
