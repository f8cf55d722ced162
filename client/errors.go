package client

import (
	"errors"
	"math"

	"pixie-rpc/message"
)

var (
	// ErrNotConnected means no pixie address could be resolved.
	ErrNotConnected = errors.New("pixie: not connected")
	// ErrInvalidArgument rejects a malformed request before anything is sent.
	ErrInvalidArgument = message.ErrInvalidArgument
)

// RemoteError is a reply that decoded fine but carries an "error" field.
type RemoteError struct {
	Message string
	// Code is the optional "code" field. Integral values are normalised to int64.
	Code any
}

func (e *RemoteError) Error() string {
	return e.Message
}

// HasCode reports whether the reply carried a code.
func (e *RemoteError) HasCode() bool {
	return e.Code != nil
}

func normalizeCode(code any) any {
	switch c := code.(type) {
	case uint64:
		if c <= math.MaxInt64 {
			return int64(c)
		}
	case float64:
		// JSON peers
		if c == math.Trunc(c) && math.Abs(c) < 1<<53 {
			return int64(c)
		}
	case int:
		return int64(c)
	}
	return code
}
