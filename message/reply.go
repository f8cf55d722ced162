package message

import "fmt"

// Reply is a decoded pixie reply. Fields holds the decoded map as-is; Raw keeps
// the bytes it came from so callers can decode "data" into a concrete type.
type Reply struct {
	Fields map[string]any
	Raw    []byte
}

// NewDataReply builds a success reply.
func NewDataReply(data any) *Reply {
	return &Reply{Fields: map[string]any{KeyData: data}}
}

// NewErrorReply builds a failure reply. A nil code is left out.
func NewErrorReply(msg string, code any) *Reply {
	fields := map[string]any{KeyError: msg}
	if code != nil {
		fields[KeyCode] = code
	}
	return &Reply{Fields: fields}
}

// Data returns the "data" field, or nil.
func (r *Reply) Data() any {
	if r == nil {
		return nil
	}
	return r.Fields[KeyData]
}

// Bytes returns "data" when it is a binary payload.
func (r *Reply) Bytes() []byte {
	switch d := r.Data().(type) {
	case []byte:
		return d
	case string:
		return []byte(d)
	default:
		return nil
	}
}

// Error reports the embedded failure, if any. An "error" field that is nil,
// false or an empty string does not count.
func (r *Reply) Error() (msg string, code any, ok bool) {
	if r == nil {
		return "", nil, false
	}
	raw, present := r.Fields[KeyError]
	if !present || raw == nil {
		return "", nil, false
	}
	switch e := raw.(type) {
	case string:
		if e == "" {
			return "", nil, false
		}
		msg = e
	case bool:
		if !e {
			return "", nil, false
		}
		msg = "remote error"
	default:
		msg = fmt.Sprint(e)
	}
	return msg, r.Fields[KeyCode], true
}
