package resp

import (
	"errors"
	"fmt"
)

// ErrIncomplete signals that the buffer does not yet hold a full frame.
// The caller must read more bytes and retry parsing from the start of
// the same buffer; no bytes are consumed on this result.
var ErrIncomplete = errors.New("resp: incomplete frame")

// ProtocolError reports a malformed frame: a bad header or terminator,
// integer overflow, invalid UTF-8 in a textual type, or an unknown
// leading byte. It is always fatal to the connection that produced it.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "resp: protocol violation: " + e.msg }

func protoErrf(format string, args ...interface{}) error {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

// LimitError reports a fused-parser safety bound violation (element
// count, nesting depth, or big-number length). It is always fatal.
type LimitError struct {
	msg string
}

func (e *LimitError) Error() string { return "resp: bound exceeded: " + e.msg }

func limitErrf(format string, args ...interface{}) error {
	return &LimitError{msg: fmt.Sprintf(format, args...)}
}
