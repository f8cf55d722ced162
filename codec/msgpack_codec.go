package codec

import (
	"bytes"
	"fmt"
	"math"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var (
	anyType    = reflect.TypeOf((*any)(nil)).Elem()
	stringType = reflect.TypeOf("")
)

// MsgpackCodec is the pixie wire format.
//
// Integers are written in their most compact form, which is what JS and Python
// msgpack encoders emit for the same values. That puts non-negative integers in
// unsigned formats, so untyped values are decoded by hand when the target is
// an any or a string-keyed map of any (including named types such as
// message.Request):
//
//	integers → int64 (uint64 only above math.MaxInt64)
//	floats   → float64
//	str      → string
//	bin      → []byte
//	maps     → map[string]any
//	arrays   → []any
//
// Struct targets go through the msgpack decoder and its struct tags.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	enc.UseCompactFloats(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgpack
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
		return decodeMap(d)
	})

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return dec.Decode(v)
	}

	elem := rv.Elem()
	switch {
	case elem.Type() == anyType:
		val, err := decodeValue(dec)
		if err != nil {
			return err
		}
		if val == nil {
			elem.Set(reflect.Zero(anyType))
		} else {
			elem.Set(reflect.ValueOf(val))
		}
		return nil

	case elem.Kind() == reflect.Map && elem.Type().Key() == stringType && elem.Type().Elem() == anyType:
		m, err := decodeMap(dec)
		if err != nil {
			return err
		}
		if m == nil {
			elem.Set(reflect.Zero(elem.Type()))
		} else {
			elem.Set(reflect.ValueOf(m).Convert(elem.Type()))
		}
		return nil
	}

	return dec.Decode(v)
}

func decodeValue(d *msgpack.Decoder) (any, error) {
	c, err := d.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case c == msgpcode.Nil:
		return nil, d.DecodeNil()
	case c == msgpcode.False || c == msgpcode.True:
		return d.DecodeBool()
	case c == msgpcode.Uint64:
		n, err := d.DecodeUint64()
		if err != nil {
			return nil, err
		}
		if n <= math.MaxInt64 {
			return int64(n), nil
		}
		return n, nil
	case msgpcode.IsFixedNum(c), c == msgpcode.Uint8, c == msgpcode.Uint16, c == msgpcode.Uint32,
		c == msgpcode.Int8, c == msgpcode.Int16, c == msgpcode.Int32, c == msgpcode.Int64:
		return d.DecodeInt64()
	case c == msgpcode.Float || c == msgpcode.Double:
		return d.DecodeFloat64()
	case msgpcode.IsString(c):
		return d.DecodeString()
	case msgpcode.IsBin(c):
		return d.DecodeBytes()
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		return decodeMap(d)
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		return decodeArray(d)
	default:
		// ext types
		return d.DecodeInterfaceLoose()
	}
}

func decodeMap(d *msgpack.Decoder) (map[string]any, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}

	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		key, err := decodeValue(d)
		if err != nil {
			return nil, err
		}
		val, err := decodeValue(d)
		if err != nil {
			return nil, err
		}
		switch k := key.(type) {
		case string:
			m[k] = val
		case []byte:
			m[string(k)] = val
		default:
			m[fmt.Sprint(k)] = val
		}
	}
	return m, nil
}

func decodeArray(d *msgpack.Decoder) ([]any, error) {
	n, err := d.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}

	s := make([]any, n)
	for i := range s {
		if s[i], err = decodeValue(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}
