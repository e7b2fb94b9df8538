package apiv1

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// Codec carries plain Go structs as JSON. It replaces connect's protobuf JSON codec
// under the same name so both Connect and gRPC-Web JSON clients work.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}

// HandlerOptions returns the codec plus any extra handler options.
func HandlerOptions(opts ...connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
}

// ClientOptions returns the codec plus any extra client options.
func ClientOptions(opts ...connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
}
