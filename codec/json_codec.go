package codec

import (
	"encoding/json"
)

// JSONCodec is for debugging against a peer that logs its traffic as text.
// Pixie itself only speaks msgpack: with JSON, numbers come back as float64
// and binary image data travels as base64 strings.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
