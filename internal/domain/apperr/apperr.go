// Package apperr defines the error taxonomy shared by the domain packages.
//
// Domain packages declare their sentinels with New and typed errors unwrap to
// one of them, so the boundary layer can classify any error chain with KindOf.
package apperr

import "github.com/go-faster/errors"

// Kind classifies a domain failure.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

// Error is a classified domain error.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

// New returns a classified error. Code is a stable machine-readable token.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func (e *Error) Error() string { return e.Msg }

// KindOf reports the kind of the first *Error in err's chain.
// Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of the first *Error in err's chain, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
