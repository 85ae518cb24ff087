package timing

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec marshals plain Go structs. It registers under "json" so it
// replaces connect's protojson codec for application/json requests.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// WithJSONCodec must be passed to both handlers and clients.
func WithJSONCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
