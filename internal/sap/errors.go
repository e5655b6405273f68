package sap

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it without string matching.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindConfig
	KindAutomation
	KindExportTimeout
	KindExtraction
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfig:
		return "configuration"
	case KindAutomation:
		return "automation"
	case KindExportTimeout:
		return "export_timeout"
	case KindExtraction:
		return "extraction"
	default:
		return "unexpected"
	}
}

// Sentinels matched with errors.Is. ErrExportTimeout also matches ErrAutomation.
var (
	ErrValidation    = errors.New("invalid run command")
	ErrConfig        = errors.New("sap configuration error")
	ErrAutomation    = errors.New("sap automation error")
	ErrExportTimeout = errors.New("sap export not detected before timeout")
	ErrExtraction    = errors.New("export extraction error")

	// ErrUnsupportedPlatform is returned by bindings that only exist on Windows.
	ErrUnsupportedPlatform = errors.New("sap gui automation requires windows")
)

// Error is a categorized failure with a human-readable diagnosis.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrAutomation:
		return e.Kind == KindAutomation || e.Kind == KindExportTimeout
	case ErrExportTimeout:
		return e.Kind == KindExportTimeout
	case ErrExtraction:
		return e.Kind == KindExtraction
	}
	return false
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func automationErr(err error, format string, args ...any) *Error {
	return newError(KindAutomation, err, format, args...)
}

func configErr(format string, args ...any) *Error {
	return newError(KindConfig, nil, format, args...)
}

// KindOf reports the category of err. Uncategorized errors are KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
