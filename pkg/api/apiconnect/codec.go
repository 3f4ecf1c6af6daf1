// Package apiconnect wires the api messages to Connect handlers and
// clients. Messages travel as JSON ("application/json" for the Connect
// protocol, "+json" for gRPC and gRPC-Web).
package apiconnect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// Codec marshals api messages with encoding/json. It replaces Connect's
// default protojson codec, which only accepts generated protobuf types.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
