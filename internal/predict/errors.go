package predict

import (
	"errors"
	"fmt"
)

// Kind classifies a prediction failure.
type Kind int

const (
	KindUnknown Kind = iota
	ModelNotReady
	MissingFile
	EmptyFile
	PayloadTooLarge
	InvalidImage
	PredictionFailed
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	ModelNotReady:    "model_not_ready",
	MissingFile:      "missing_file",
	EmptyFile:        "empty_file",
	PayloadTooLarge:  "payload_too_large",
	InvalidImage:     "invalid_image",
	PredictionFailed: "prediction_failed",
}

// String returns the machine-readable code for k.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Error is a prediction failure of a known kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of kind k with a formatted cause.
func Errorf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err. Errors not produced by this package are
// PredictionFailed.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return PredictionFailed
}
