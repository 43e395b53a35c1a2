package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindValidation
	KindNotFound
	KindInvalidTransition
	KindUnauthorized
)

// Sentinels for errors.Is. An *Error matches a sentinel of the same kind.
var (
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrUnknown           = &Error{Kind: KindUnknown}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain, KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network failure"
	case KindValidation:
		return "validation failure"
	case KindNotFound:
		return "not found"
	case KindInvalidTransition:
		return "invalid transition"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown error"
	}
}

// Code is the stable wire identifier used in JSON error bodies.
func (k Kind) Code() string {
	switch k {
	case KindNetwork:
		return "NETWORK_FAILURE"
	case KindValidation:
		return "VALIDATION_FAILURE"
	case KindNotFound:
		return "NOT_FOUND"
	case KindInvalidTransition:
		return "INVALID_TRANSITION"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNKNOWN"
	}
}

func ParseCode(code string) Kind {
	for _, k := range []Kind{KindNetwork, KindValidation, KindNotFound, KindInvalidTransition, KindUnauthorized} {
		if k.Code() == code {
			return k
		}
	}
	return KindUnknown
}

// Message turns any error into text suitable for a banner or a row hint.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" && e.Kind != KindNetwork && e.Kind != KindUnknown {
		return e.Message
	}
	switch KindOf(err) {
	case KindNetwork:
		return "Could not reach the order service. Check your connection and try again."
	case KindValidation:
		return "The order service returned data we could not understand."
	case KindNotFound:
		return "The order no longer exists."
	case KindInvalidTransition:
		return "That status change is not allowed for this order."
	case KindUnauthorized:
		return "Your session has expired. Please sign in again."
	default:
		return "Something went wrong. Please try again."
	}
}
