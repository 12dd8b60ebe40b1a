package rediserr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Error is the library's single error type, discriminated by Kind.
// MOVED and ASK frames additionally carry a Slot and Addr payload.
type Error struct {
	Kind  Kind
	Msg   string
	Slot  uint16
	Addr  string
	Other string // raw prefix token, set only when Kind == Other
	cause error
}

func (e *Error) Error() string {
	if e.Kind == Moved || e.Kind == Ask {
		return fmt.Sprintf("redis: %s %d %s", e.Kind, e.Slot, e.Addr)
	}
	if e.Kind == Other {
		return fmt.Sprintf("redis: server error %q", e.Msg)
	}
	return fmt.Sprintf("redis: %s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// New builds a non-server-origin error (transport, protocol, timeout,
// topology, or type-validation) wrapping cause, which may be nil.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: errors.WithStack(cause)}
}

// Newf is New with fmt.Sprintf-style formatting and no cause.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// FromServerLine parses a server error line (without leading '-' or
// '!' and without the trailing CRLF) into a structured *Error. The
// first whitespace-delimited token selects the Kind. MOVED/ASK parse
// their slot and address payload; a malformed MOVED/ASK degrades to
// Kind Other with prefix "MOVED"/"ASK" so the router's redirect
// classifier does not misfire on garbage input (spec.md §4.5).
func FromServerLine(line string) *Error {
	token, rest := splitFirstToken(line)
	kind, known := knownPrefixes[token]
	if !known {
		return &Error{Kind: Other, Msg: line, Other: token}
	}

	switch kind {
	case Moved, Ask:
		slot, addr, ok := parseRedirectPayload(rest)
		if !ok {
			return &Error{Kind: Other, Msg: line, Other: token}
		}
		return &Error{Kind: kind, Msg: line, Slot: slot, Addr: addr}
	default:
		return &Error{Kind: kind, Msg: line}
	}
}

func splitFirstToken(s string) (token, rest string) {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// parseRedirectPayload parses "<slot> <host>:<port>" from a MOVED/ASK
// error's remainder.
func parseRedirectPayload(rest string) (slot uint16, addr string, ok bool) {
	parts := strings.Fields(rest)
	if len(parts) != 2 {
		return 0, "", false
	}
	n, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return 0, "", false
	}
	if parts[1] == "" {
		return 0, "", false
	}
	return uint16(n), parts[1], true
}

// IsRetryable reports whether kind is one the routers are permitted to
// transparently retry (redirect/READONLY/TRYAGAIN), per spec.md §7's
// "never-retried" rule for every other server Kind.
func (k Kind) IsRetryable() bool {
	switch k {
	case Moved, Ask, ReadOnly, TryAgain:
		return true
	default:
		return false
	}
}
