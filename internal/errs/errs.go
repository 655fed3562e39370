// Package errs wraps storage and transport failures on their way up to the
// CLI and HTTP layers, and renders them for slog.
package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Wrap prefixes err with msg. A nil err stays nil so repository code can
// wrap the result of a gorm call unconditionally.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// StackError carries the goroutine stack from the point where a failure left
// a repository or collaborator and entered a triage operation.
type StackError struct {
	err   error
	stack []byte
}

func (e *StackError) Error() string { return e.err.Error() }
func (e *StackError) Unwrap() error { return e.err }
func (e *StackError) Stack() []byte { return e.stack }

// WithStack records the stack unless err already has one somewhere in its
// chain; only the innermost capture is kept.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := stackOf(err); ok {
		return err
	}
	return &StackError{err: err, stack: debug.Stack()}
}

func stackOf(err error) ([]byte, bool) {
	var se *StackError
	if !errors.As(err, &se) {
		return nil, false
	}
	return se.stack, true
}

// Loggable renders err as a slog group: "message", then "chain" when the
// error wraps others, then "stack" when one was captured. Use it as
// slog.Any("err", errs.Loggable(err)).
func Loggable(err error) slog.LogValuer { return loggable{err: err} }

type loggable struct{ err error }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	attrs := make([]slog.Attr, 0, 3)
	attrs = append(attrs, slog.String("message", l.err.Error()))
	if chain := ErrorChainStrings(l.err); len(chain) > 1 {
		attrs = append(attrs, slog.Any("chain", chain))
	}
	if stack, ok := stackOf(l.err); ok {
		attrs = append(attrs, slog.String("stack", string(stack)))
	}
	return slog.GroupValue(attrs...)
}

// ErrorChainStrings flattens the unwrap tree, outermost first. Branches of
// errors.Join and multi-%w errors are visited in order, each to its end.
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}

	var out []string
	stack := []error{err}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, e.Error())

		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			inner := u.Unwrap()
			for i := len(inner) - 1; i >= 0; i-- {
				if inner[i] != nil {
					stack = append(stack, inner[i])
				}
			}
		case interface{ Unwrap() error }:
			if next := u.Unwrap(); next != nil {
				stack = append(stack, next)
			}
		}
	}
	return out
}
