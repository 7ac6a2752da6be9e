// Package rpc defines the daemon control plane: gRPC service descriptors,
// the message types they carry and a client for the CLI.
//
// Messages are plain Go structs encoded as JSON through a registered gRPC
// codec, so there is no generated code. Clients select the codec with the
// "json" content subtype; Dial does this for every call.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of the control plane.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
