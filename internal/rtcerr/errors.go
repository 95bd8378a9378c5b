// Package rtcerr defines the error-kind taxonomy shared by the peer
// connection, ICE codec, TURN credentialer, and peer manager packages.
//
// Callers distinguish error classes with errors.Is against the Kind
// sentinels rather than string matching, while the wrapped error still
// carries the underlying cause via %w.
package rtcerr

import "fmt"

// Kind classifies a failure the way spec.md §7 requires callers to be able
// to distinguish, without forcing every package to invent its own sentinel
// errors.
type Kind int

const (
	// InvalidParam covers a null/zero argument, malformed candidate, or an
	// operation invoked with the wrong role.
	InvalidParam Kind = iota
	// InvalidState covers "no pair selected yet", "channel not open", or
	// "library not initialized" — typically recoverable by retrying later.
	InvalidState
	// Memory covers allocation failure.
	Memory
	// Network covers the engine refusing a request or a channel closing
	// mid-operation.
	Network
	// Crypto covers HMAC/base64 derivation failures in the credentialer.
	Crypto
	// BufferOverflow covers fixed-size output buffers being too small for
	// the encoded result.
	BufferOverflow
	// Init covers an API called before the library was initialized.
	Init
)

func (k Kind) String() string {
	switch k {
	case InvalidParam:
		return "invalid_param"
	case InvalidState:
		return "invalid_state"
	case Memory:
		return "memory"
	case Network:
		return "network"
	case Crypto:
		return "crypto"
	case BufferOverflow:
		return "buffer_overflow"
	case Init:
		return "init"
	default:
		return "unknown"
	}
}

// Error is an error annotated with a Kind so callers can branch on the
// failure class with errors.Is(err, rtcerr.ErrNetwork) etc.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a Kind sentinel matching e.Kind, so
// errors.Is(err, rtcerr.ErrNetwork) works without exposing *Error's fields.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && k.kind == e.Kind
}

// kindSentinel wraps a Kind as an error, backing the ErrX errors.Is targets
// below.
type kindSentinel struct{ kind Kind }

func (k kindSentinel) Error() string { return k.kind.String() }

// sentinels. Compare with errors.Is(err, rtcerr.ErrNetwork), etc.
var (
	ErrInvalidParam   error = kindSentinel{InvalidParam}
	ErrInvalidState   error = kindSentinel{InvalidState}
	ErrMemory         error = kindSentinel{Memory}
	ErrNetwork        error = kindSentinel{Network}
	ErrCrypto         error = kindSentinel{Crypto}
	ErrBufferOverflow error = kindSentinel{BufferOverflow}
	ErrInit           error = kindSentinel{Init}
)

// New wraps err with a Kind and an operation label describing where it
// occurred, e.g. rtcerr.New(rtcerr.Network, "peer.SetRemoteDescription", err).
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a Kind error without an underlying cause, for validation
// failures that don't wrap another error.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
