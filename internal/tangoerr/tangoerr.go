// Package tangoerr defines the error taxonomy shared across the module:
// every fatal condition a Match, handshake, or harness can hit is tagged
// with a Kind so callers can decide what to do with it without string
// matching.
package tangoerr

import "fmt"

// Kind classifies an error by how it should be handled.
type Kind int

const (
	// KindTransport covers a closed or unreachable datagram/signaling channel.
	// Fatal to the Match.
	KindTransport Kind = iota
	// KindProtocol covers version/ROM mismatches, malformed payloads, and
	// commitment verification failures. Fatal to the Match; safe to show the user.
	KindProtocol
	// KindGame covers conditions recoverable locally, e.g. a trap firing with
	// no active Match.
	KindGame
	// KindPlatform covers ROM/save load failures or a missing audio device.
	// Fatal to the process.
	KindPlatform
	// KindCancelled marks a user-initiated abort. Never surfaced as an error.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindGame:
		return "game"
	case KindPlatform:
		return "platform"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error from a format string, in the style of fmt.Errorf.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap tags an existing error with a Kind, preserving it for errors.Unwrap/Is/As.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of the first *Error found in err's chain, or
// KindGame if err carries no Kind at all (the least severe default).
func KindOf(err error) Kind {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindGame
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if te, ok := err.(*Error); ok {
			e = te
			if e.Kind == kind {
				return true
			}
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}
