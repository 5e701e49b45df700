// Package rpc exposes the same chat-completion surface the HTTP front-end
// serves, over gRPC, without a protoc-generated client/server pair. The
// message types are the plain Go structs the HTTP handlers already use —
// we register a JSON codec so gRPC frames them with encoding/json instead
// of protobuf, and wire up a hand-built grpc.ServiceDesc instead of
// generated *_grpc.pb.go stubs.
//
// This only works because the spec treats gRPC wire-format fidelity as
// out of scope — it has to present the same semantics as HTTP, not byte-
// identical frames to some other ecosystem's client. A "real" public gRPC
// API would need a .proto file and generated stubs like every other
// service in the pack.
package rpc

import "encoding/json"

// codecName is negotiated with clients via the "grpc-encoding"/content-subtype
// mechanism — clients must request it explicitly, since there's no .proto
// to generate matching stubs from. This repository ships no gRPC client.
const codecName = "json"

// jsonCodec implements grpc/encoding.Codec by delegating straight to
// encoding/json. gRPC normally requires protobuf's Marshaler, but the
// interface is just Marshal/Unmarshal/Name — nothing about this package
// is proto-specific, so a plain JSON codec drops in cleanly.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}
