package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies transport failures at the boundary so retry policy
// never pattern-matches on error text.
type ErrorKind int

const (
	// KindTimeout: the send exceeded its time box. Retryable.
	KindTimeout ErrorKind = iota
	// KindUnreachable: network-level failure before a response. Retryable.
	KindUnreachable
	// KindRejected: the provider answered and said no. Not retryable.
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is a tagged transport failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a transport error kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Transient reports whether an error is worth retrying. Only tagged
// timeout and unreachable failures qualify; anything untagged is treated
// as terminal.
func Transient(err error) bool {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind == KindTimeout || terr.Kind == KindUnreachable
	}
	return false
}

// Transport is the outbound message capability. Implementations must
// return tagged *Error values and honor context deadlines.
type Transport interface {
	// Send delivers content to the recipient and returns a provider
	// message identifier.
	Send(ctx context.Context, to, content string) (messageID string, err error)
	// Configured reports whether the transport can actually deliver.
	// An unconfigured transport puts the whole dispatch run into
	// simulated mode rather than failing it.
	Configured() bool
}
