package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure surfaced to callers.
type Kind string

const (
	UnsupportedFileType  Kind = "UnsupportedFileType"
	UnreadableFile       Kind = "UnreadableFile"
	ColumnNotFound       Kind = "ColumnNotFound"
	UnsupportedOperation Kind = "UnsupportedOperation"
	EmptyDocument        Kind = "EmptyDocument"
	ContextTooLarge      Kind = "ContextTooLarge"
	LLMTimeout           Kind = "LLMTimeout"
	LLMRequestFailed     Kind = "LLMRequestFailed"
	InvalidQuery         Kind = "InvalidQuery"
	NotFound             Kind = "NotFound"

	// Unknown is returned by KindOf for errors outside the taxonomy.
	Unknown Kind = ""
)

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that keeps cause in its chain.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the message of the first *Error in err's chain, or err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
