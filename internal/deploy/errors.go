package deploy

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when the operator declines a confirmation. It is
// a control outcome, not a failure.
var ErrCancelled = errors.New("cancelled")

// ErrNothingToUnload is returned by Unload when the registry has no entry
// for the target.
var ErrNothingToUnload = errors.New("nothing to unload")

// ErrNoObject is returned by Load when no compiled object exists.
var ErrNoObject = errors.New("no compiled object")

// Kind classifies a failed operation.
type Kind int

const (
	// KindConfig: the policy or the flags are invalid. Nothing was attempted.
	KindConfig Kind = iota + 1
	// KindComposition: the engine could not render the policy.
	KindComposition
	// KindToolchain: the compiler or loader failed.
	KindToolchain
	// KindTarget: the host rejected an operation or lacks a program, map or
	// interface.
	KindTarget
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindComposition:
		return "composition"
	case KindToolchain:
		return "toolchain"
	case KindTarget:
		return "target"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a failed orchestrator operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func fail(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	// Keep the innermost classification.
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
