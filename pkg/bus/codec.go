package bus

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// JSONCodecName is registered as a grpc encoding.Codec so every RPC on
// the bus carries plain JSON messages instead of wire-format protobuf.
// Resource endpoints are small, locally-spawned processes; paying for a
// protoc-generated message layer buys nothing here that a json.Marshal
// struct doesn't already give, and it lets request/reply types live as
// ordinary Go structs. Exported so other bus clients (pkg/search's
// agent plugin) can use the same content subtype without duplicating
// the codec registration.
const JSONCodecName = "json"

const jsonCodecName = JSONCodecName

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
