package mesh

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind int

const (
	// KindInvalidFormat marks malformed or unrecognized file bytes.
	KindInvalidFormat Kind = iota + 1
	// KindInvalidInput marks a mesh breaking its invariants or an out-of-range
	// configuration value.
	KindInvalidInput
	// KindProcessing marks an algorithm that could not complete.
	KindProcessing
	// KindAcceleratedPath marks a failure of the accelerated implementation.
	// The execution strategy recovers from it by running the portable path.
	KindAcceleratedPath
)

// Sentinel errors matched with errors.Is against any *Error of the same kind.
var (
	ErrInvalidFormat   = errors.New("invalid format")
	ErrInvalidInput    = errors.New("invalid input")
	ErrProcessing      = errors.New("processing error")
	ErrAcceleratedPath = errors.New("accelerated path failure")
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInvalidFormat:
		return "invalid format"
	case KindInvalidInput:
		return "invalid input"
	case KindProcessing:
		return "processing error"
	case KindAcceleratedPath:
		return "accelerated path failure"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidFormat:
		return ErrInvalidFormat
	case KindInvalidInput:
		return ErrInvalidInput
	case KindProcessing:
		return ErrProcessing
	case KindAcceleratedPath:
		return ErrAcceleratedPath
	}
	return nil
}

// Error is the error type returned by the engine.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "weld"
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// InvalidFormat builds a KindInvalidFormat error wrapping cause.
func InvalidFormat(op string, cause error) error {
	return &Error{Kind: KindInvalidFormat, Op: op, Err: cause}
}

// Processing builds a KindProcessing error.
func Processing(op, format string, args ...any) error {
	return &Error{Kind: KindProcessing, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// AcceleratedPath builds a KindAcceleratedPath error wrapping cause.
func AcceleratedPath(op string, cause error) error {
	return &Error{Kind: KindAcceleratedPath, Op: op, Err: cause}
}
