package cron

import "errors"

// Parse errors. Every error returned by Parse wraps ErrSyntax, and the more
// specific sentinels below identify which rule was broken.
var (
	ErrSyntax         = errors.New("invalid cron syntax")
	ErrInvalidValue   = syntaxError("invalid value")
	ErrOutOfRange     = syntaxError("value out of range")
	ErrMalformedRange = syntaxError("malformed range")
)

// kindError is a sentinel that also matches ErrSyntax
type kindError struct {
	msg string
}

func syntaxError(msg string) error {
	return &kindError{msg: msg}
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Is(target error) bool {
	return target == ErrSyntax
}
