package gateway

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements encoding.Codec over encoding/json. There is no
// protoc toolchain available to generate message types from a .proto file,
// so the gateway's wire messages are plain Go structs (DrainRequest,
// model.Message) marshaled as JSON instead of protobuf.
//
// Registering this codec under the name "proto" replaces grpc-go's default
// codec for every call that doesn't otherwise negotiate a content-subtype,
// so existing grpc.Dial/grpc.NewServer callers get JSON framing without
// needing CallContentSubtype on every call site.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("gateway codec: marshal: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("gateway codec: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
