// Package codec turns request and reply envelopes into bytes and back.
//
// The wire format is MessagePack: both ends of the pixie socket speak it, so the
// encoding must stay byte-compatible with any conforming msgpack implementation.
// JSON is kept for debugging against peers that print their traffic.
package codec

import (
	"fmt"
	"strings"
)

type CodecType byte

const (
	CodecTypeMsgpack CodecType = 0
	CodecTypeJSON    CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeMsgpack:
		return "msgpack"
	case CodecTypeJSON:
		return "json"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec returns the codec for codecType, falling back to msgpack.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &MsgpackCodec{}
}

// ParseCodec maps a config value ("msgpack", "json") to a codec.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "msgpack":
		return &MsgpackCodec{}, nil
	case "json":
		return &JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("invalid codec %q (must be msgpack or json)", name)
	}
}
