package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a conversion job failed.
type ErrorKind string

const (
	KindUnsupportedPlatform        ErrorKind = "UnsupportedPlatform"
	KindSourceNotFound             ErrorKind = "SourceNotFound"
	KindInvalidJob                 ErrorKind = "InvalidJob"
	KindAutomationUnavailable      ErrorKind = "AutomationUnavailable"
	KindAutomationPermissionDenied ErrorKind = "AutomationPermissionDenied"
	KindAutomationTimeout          ErrorKind = "AutomationTimeout"
	KindExportFailed               ErrorKind = "ExportFailed"
	KindArtifactNotFound           ErrorKind = "ArtifactNotFound"
	KindRasterToolFailed           ErrorKind = "RasterToolFailed"
	KindOutputFailed               ErrorKind = "OutputFailed"
	KindCleanupWarning             ErrorKind = "CleanupWarning"
)

// Error is a conversion failure with the stage it happened in and the
// diagnostic text of the external tool that caused it.
type Error struct {
	Kind    ErrorKind
	Stage   State
	Message string
	// Diagnostic is the raw text reported by the automation bridge or the
	// failed tool's standard error.
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error. The wrapped error keeps a stack trace.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     errors.WithStack(err),
	}
}

// WithDiagnostic attaches tool output to the error and returns it.
func (e *Error) WithDiagnostic(diagnostic string) *Error {
	e.Diagnostic = diagnostic
	return e
}

// WithStage records the stage the error surfaced in, unless a more specific
// stage was already recorded closer to the failure.
func (e *Error) WithStage(stage State) *Error {
	if e.Stage == StateIdle || e.Stage == "" {
		e.Stage = stage
	}
	return e
}

// Common error constructors
func UnsupportedPlatformError(message string) *Error {
	return NewError(KindUnsupportedPlatform, message, nil)
}

func SourceNotFoundError(message string, err error) *Error {
	return NewError(KindSourceNotFound, message, err)
}

func InvalidJobError(message string) *Error {
	return NewError(KindInvalidJob, message, nil)
}

func AutomationUnavailableError(message string, err error) *Error {
	return NewError(KindAutomationUnavailable, message, err)
}

func AutomationPermissionDeniedError(message string, err error) *Error {
	return NewError(KindAutomationPermissionDenied, message, err)
}

func AutomationTimeoutError(message string, err error) *Error {
	return NewError(KindAutomationTimeout, message, err)
}

func ExportFailedError(message string, err error) *Error {
	return NewError(KindExportFailed, message, err)
}

func ArtifactNotFoundError(message string) *Error {
	return NewError(KindArtifactNotFound, message, nil)
}

func RasterToolFailedError(message string, err error) *Error {
	return NewError(KindRasterToolFailed, message, err)
}

func OutputFailedError(message string, err error) *Error {
	return NewError(KindOutputFailed, message, err)
}

func CleanupWarningError(message string, err error) *Error {
	return NewError(KindCleanupWarning, message, err)
}

// AsError returns the domain error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of the domain error in err's chain, or "" when err
// is not a domain error.
func KindOf(err error) ErrorKind {
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	return ""
}

// ExitCode maps an error kind to the process exit status used by the CLI.
func ExitCode(kind ErrorKind) int {
	switch kind {
	case "":
		return 0
	case KindUnsupportedPlatform:
		return 2
	case KindSourceNotFound:
		return 3
	case KindAutomationUnavailable:
		return 4
	case KindAutomationPermissionDenied:
		return 5
	case KindAutomationTimeout:
		return 6
	case KindExportFailed:
		return 7
	case KindArtifactNotFound:
		return 8
	case KindRasterToolFailed:
		return 9
	case KindOutputFailed:
		return 10
	default:
		return 1
	}
}
