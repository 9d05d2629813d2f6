package upload

import (
	"errors"
	"fmt"
)

// Kind classifies upload failures.
type Kind int

const (
	KindConfig     Kind = iota + 1 // missing endpoint or token
	KindValidation                 // local file checks, 413, 422
	KindAuth                       // 401
	KindServer                     // 5xx
	KindTransient                  // timeout or connection failure
	KindRejected                   // any other non-success status
)

// Sentinels for errors.Is matching against an *Error.
var (
	ErrConfig     = errors.New("upload configuration error")
	ErrValidation = errors.New("upload validation error")
	ErrAuth       = errors.New("upload authentication error")
	ErrServer     = errors.New("upload server error")
	ErrTransient  = errors.New("upload transient error")
	ErrRejected   = errors.New("upload rejected")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindValidation:
		return ErrValidation
	case KindAuth:
		return ErrAuth
	case KindServer:
		return ErrServer
	case KindTransient:
		return ErrTransient
	case KindRejected:
		return ErrRejected
	default:
		return nil
	}
}

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindServer:
		return "server"
	case KindTransient:
		return "transient"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error describes a failed upload, probe or status request.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 when no response was received
	Message string // human-readable reason, server message when available
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindServer || e.Kind == KindTransient
}

func configError(msg string) *Error {
	return &Error{Kind: KindConfig, Message: msg}
}

func validationError(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return 0
}
