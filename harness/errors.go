package harness

import (
	"errors"
	"fmt"
)

// Kind classifies harness failures.
type Kind int

const (
	// KindUnknown is reported for errors that did not come from the harness.
	KindUnknown Kind = iota
	// KindIO covers reading binaries and writing reports.
	KindIO
	// KindSerialization covers encoding state and call parameters.
	KindSerialization
	// KindEngine covers faults raised by the execution environment.
	KindEngine
	// KindLogical covers calls that completed with an unacceptable exit code.
	KindLogical
	// KindConfig covers plans that cannot be set up, such as funding an
	// account the plan does not create.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindSerialization:
		return "serialization"
	case KindEngine:
		return "engine"
	case KindLogical:
		return "logical"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is a failure attributed to one variant and one step of its run.
type Error struct {
	Kind    Kind
	Variant string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e.Variant == "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
	}

	return fmt.Sprintf("%s: %s %s: %v", e.Variant, e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, variant, op string, err error) *Error {
	return &Error{Kind: kind, Variant: variant, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}
