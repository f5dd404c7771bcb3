package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")
	ErrValidation   = errors.New("malformed entity")
	ErrConflict     = errors.New("entity state conflict")
	ErrUnauthorized = errors.New("missing or invalid credentials")
	ErrUnavailable  = errors.New("service unavailable")
)

// Coded is an error carrying a stable machine-readable code.
type Coded interface {
	error
	Code() string
}

type codedError struct {
	code string
	msg  string
	kind error
}

// New returns an error with the given code that matches kind under errors.Is.
func New(code, msg string, kind error) error {
	return &codedError{code: code, msg: msg, kind: kind}
}

func (e *codedError) Error() string {
	return e.msg
}

func (e *codedError) Code() string {
	return e.code
}

func (e *codedError) Unwrap() error {
	return e.kind
}

// Code extracts the first machine-readable code found in the chain of err.
func Code(err error) string {
	var ce Coded
	if errors.As(err, &ce) {
		return ce.Code()
	}

	return ""
}
