// Package xerrors wraps errors with the location they were created or
// annotated at. The logger reads StackPCs and PC to fill stack and
// error_links attributes.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries the call stack of the point it was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

// annotated prefixes a message and remembers the single annotating frame.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error { return a.err }
func (a *annotated) PC() uintptr   { return a.pc }

// callers returns the stack above the exported function that called it.
func callers() []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// runtime.Callers, callers, exported function
	return pcs[:runtime.Callers(3, pcs)]
}

// caller returns the frame above the exported function that called it.
func caller() uintptr {
	var pcs [1]uintptr
	if runtime.Callers(3, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func New(msg string) error {
	return &stacked{err: errors.New(msg), pcs: callers()}
}

func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: callers()}
}

// WithStack records the current stack on err. It returns nil for nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: callers()}
}

// EnsureTrace is WithStack unless some error in the chain already has a stack.
func EnsureTrace(err error) error {
	if err == nil || HasStack(err) {
		return err
	}
	return &stacked{err: err, pcs: callers()}
}

// HasStack reports whether any error in err's chain carries a stack.
func HasStack(err error) bool {
	var s interface{ StackPCs() []uintptr }
	return errors.As(err, &s) && len(s.StackPCs()) > 0
}

// Wrap annotates err with msg. It returns nil for nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: caller()}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: caller()}
}
