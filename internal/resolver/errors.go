package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a resolution failure.
type Kind string

const (
	KindInvalidInput      Kind = "InvalidInput"
	KindNotFound          Kind = "NotFound"
	KindUpstreamFailure   Kind = "UpstreamFailure"
	KindPropagationFailed Kind = "PropagationFailed"
	KindPartialFailure    Kind = "PartialFailure"
)

// Sentinels for errors.Is matching against a Kind.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrPropagationFailed = errors.New("propagation failed")
	ErrPartialFailure    = errors.New("partial failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindNotFound:
		return ErrNotFound
	case KindUpstreamFailure:
		return ErrUpstreamFailure
	case KindPropagationFailed:
		return ErrPropagationFailed
	case KindPartialFailure:
		return ErrPartialFailure
	}
	return nil
}

// severity orders per-object kinds; higher wins when both objects fail.
func (k Kind) severity() int {
	switch k {
	case KindUpstreamFailure:
		return 4
	case KindPropagationFailed:
		return 3
	case KindNotFound:
		return 2
	case KindInvalidInput:
		return 1
	}
	return 0
}

// ObjectError is the failure of one slot of a query.
type ObjectError struct {
	Slot       string // "sat1" or "sat2"
	Identifier string // as submitted
	CatalogID  int    // 0 when Identifier did not parse
	Kind       Kind
	Err        error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Slot, e.Identifier, e.Err)
}

func (e *ObjectError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *ObjectError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// QueryError is returned by Resolve when at least one object failed, or the
// query as a whole was invalid. For a partial failure Partial holds the
// result with the successful slot filled in.
type QueryError struct {
	Kind    Kind
	Errors  []*ObjectError
	Partial *Result
	Err     error // query-level cause when Errors is empty
}

func (e *QueryError) Error() string {
	if len(e.Errors) == 0 {
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	msgs := make([]string, len(e.Errors))
	for i, oe := range e.Errors {
		msgs[i] = oe.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *QueryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors)+1)
	for _, oe := range e.Errors {
		errs = append(errs, oe)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Is matches the sentinel of the query's overall kind.
func (e *QueryError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// ForSlot returns the error of the named slot, or nil.
func (e *QueryError) ForSlot(slot string) *ObjectError {
	for _, oe := range e.Errors {
		if oe.Slot == slot {
			return oe
		}
	}
	return nil
}

// InvalidQuery reports a query-level validation failure.
func InvalidQuery(format string, args ...any) *QueryError {
	return &QueryError{Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

// Failed builds a QueryError for operations that need every object; its
// kind is the most severe among errs.
func Failed(errs ...*ObjectError) *QueryError {
	return &QueryError{Kind: worst(errs), Errors: errs}
}

// worst returns the most severe kind among errs.
func worst(errs []*ObjectError) Kind {
	var k Kind
	for _, e := range errs {
		if e.Kind.severity() > k.severity() {
			k = e.Kind
		}
	}
	return k
}
