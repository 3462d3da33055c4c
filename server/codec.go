package server

import (
	"encoding/json"
)

// jsonCodec carries plain Go structs. Connect's built-in "json" codec only
// accepts protobuf messages, so this one replaces it under the same name.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}
