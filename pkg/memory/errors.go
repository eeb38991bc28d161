package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/dasmlab/tmengine/pkg/store"
)

// Kind is the class of an engine failure. Callers use it to decide whether a
// retry makes sense.
type Kind int

const (
	// KindUnknown is returned by KindOf for errors not produced by the engine.
	KindUnknown Kind = iota
	// KindValidation means the request was missing a required field.
	KindValidation
	// KindStorageUnavailable means the store could not be reached.
	KindStorageUnavailable
	// KindStorageTimeout means a store call ran past its deadline.
	KindStorageTimeout
	// KindStorageProtocol means the store rejected the request.
	KindStorageProtocol
	// KindFallbackOracle means the fallback translator failed.
	KindFallbackOracle
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindStorageTimeout:
		return "storage_timeout"
	case KindStorageProtocol:
		return "storage_protocol"
	case KindFallbackOracle:
		return "fallback_oracle"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against *Error values.
var (
	ErrValidation         = errors.New("validation error")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorageTimeout     = errors.New("storage timeout")
	ErrStorageProtocol    = errors.New("storage protocol error")
	ErrFallbackOracle     = errors.New("fallback translator error")
)

var kindSentinels = map[Kind]error{
	KindValidation:         ErrValidation,
	KindStorageUnavailable: ErrStorageUnavailable,
	KindStorageTimeout:     ErrStorageTimeout,
	KindStorageProtocol:    ErrStorageProtocol,
	KindFallbackOracle:     ErrFallbackOracle,
}

// Error is the typed failure returned by Engine operations.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of the first *Error in err's chain, or the kind
// whose sentinel err wraps.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind := KindValidation; kind <= KindFallbackOracle; kind++ {
		if errors.Is(err, kindSentinels[kind]) {
			return kind
		}
	}
	return KindUnknown
}

func validationError(op, detail string) error {
	return &Error{Kind: KindValidation, Op: op, Detail: detail}
}

func fallbackError(op string, err error) error {
	return &Error{Kind: KindFallbackOracle, Op: op, Err: err}
}

// storageError maps a store failure onto the engine taxonomy.
func storageError(op string, err error) error {
	kind := KindStorageProtocol
	switch {
	case errors.Is(err, store.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		kind = KindStorageTimeout
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.Canceled):
		kind = KindStorageUnavailable
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
