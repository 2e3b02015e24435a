package concept

import (
	"context"
	"errors"
	"fmt"
)

// ErrKind classifies why a slot or call produced no value.
type ErrKind int

const (
	KindNone ErrKind = iota
	KindTransient
	KindTimeout
	KindParse
	KindUnavailable
)

func (k ErrKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindParse:
		return "parse"
	case KindUnavailable:
		return "unavailable"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ErrUnparsable is returned when neither a visual nor a headline can be
// recovered from model output.
var ErrUnparsable = errors.New("unparsable concept")

// ErrUnavailable marks a backend that cannot serve requests at all.
var ErrUnavailable = errors.New("backend unavailable")

// Classify maps an error onto an ErrKind.
func Classify(err error) ErrKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.Is(err, ErrUnparsable):
		return KindParse
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	}
	return KindTransient
}

// Result carries either a value or a classified failure. Pipeline slots use it
// so one failure never aborts the batch.
type Result[T any] struct {
	Value T
	Kind  ErrKind
	Err   error
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps an error, classifying it.
func Fail[T any](err error) Result[T] {
	return Result[T]{Kind: Classify(err), Err: err}
}

// OK reports whether the result holds a value.
func (r Result[T]) OK() bool {
	return r.Err == nil
}
