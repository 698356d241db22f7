package orchestration

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is. Every FAILED or CANCELLED result carries
// one of them through SynthesisError.
var (
	ErrSchemaUnavailable    = errors.New("schema unavailable")
	ErrQueryInvalid         = errors.New("query invalid")
	ErrExecutionDenied      = errors.New("execution denied")
	ErrReasoningUnavailable = errors.New("reasoning service unavailable")
	ErrBudgetExhausted      = errors.New("repair budget exhausted")
	ErrCancelled            = errors.New("synthesis cancelled")
)

// ErrorKind names the failure taxonomy
type ErrorKind string

const (
	KindSchemaUnavailable    ErrorKind = "SchemaUnavailable"
	KindQueryInvalid         ErrorKind = "QueryInvalid"
	KindExecutionDenied      ErrorKind = "ExecutionDenied"
	KindReasoningUnavailable ErrorKind = "ReasoningUnavailable"
	KindBudgetExhausted      ErrorKind = "BudgetExhausted"
	KindCancelled            ErrorKind = "Cancelled"
	KindInvalidInput         ErrorKind = "InvalidInput"
	KindInternal             ErrorKind = "Internal"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindSchemaUnavailable:
		return ErrSchemaUnavailable
	case KindQueryInvalid:
		return ErrQueryInvalid
	case KindExecutionDenied:
		return ErrExecutionDenied
	case KindReasoningUnavailable:
		return ErrReasoningUnavailable
	case KindBudgetExhausted:
		return ErrBudgetExhausted
	case KindCancelled:
		return ErrCancelled
	}
	return nil
}

// SynthesisError is the structured failure attached to a result.
// errors.Is matches both the kind's sentinel and the underlying cause.
type SynthesisError struct {
	Op      string
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SynthesisError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap exposes the kind sentinel and the cause
func (e *SynthesisError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newSynthesisError(op string, kind ErrorKind, message string, err error) *SynthesisError {
	return &SynthesisError{Op: op, Kind: kind, Message: message, Err: err}
}
