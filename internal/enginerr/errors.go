// Package enginerr defines the typed error kinds the engine surfaces to
// callers (§7 of the specification), so a caller can distinguish "the
// diff was malformed" from "the rule timed out" without string matching.
package enginerr

import "fmt"

// ErrorKind is one of the nine failure modes the engine can report.
type ErrorKind string

const (
	InvalidPatch              ErrorKind = "InvalidPatch"
	ParseFailure               ErrorKind = "ParseFailure"
	UnknownFileStatus          ErrorKind = "UnknownFileStatus"
	InconsistentForgeResponse  ErrorKind = "InconsistentForgeResponse"
	MalformedFrontMatter       ErrorKind = "MalformedFrontMatter"
	NonBooleanResult           ErrorKind = "NonBooleanResult"
	RuleExecutionFailure       ErrorKind = "RuleExecutionFailure"
	Timeout                    ErrorKind = "Timeout"
	EngineInternalError        ErrorKind = "EngineInternalError"
)

// EngineError is the concrete carrier for an ErrorKind. It wraps an
// optional underlying cause so callers can still inspect it via errors.Is
// / errors.As / errors.Unwrap while switching on Kind for control flow.
type EngineError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// New constructs an EngineError with no wrapped cause.
func New(kind ErrorKind, message string) *EngineError {
	return &EngineError{Kind: kind, Message: message}
}

// Newf constructs an EngineError with a formatted message.
func Newf(kind ErrorKind, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an EngineError around an underlying cause.
func Wrap(kind ErrorKind, message string, cause error) *EngineError {
	return &EngineError{Kind: kind, Message: message, Cause: cause}
}

// Wrapf constructs an EngineError with a formatted message around an
// underlying cause.
func Wrapf(kind ErrorKind, cause error, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an EngineError of the given kind.
func Is(err error, kind ErrorKind) bool {
	var ee *EngineError
	if e, ok := err.(*EngineError); ok {
		ee = e
	} else {
		return false
	}
	return ee.Kind == kind
}
