package errors

import (
	stderrors "errors"

	pkgerrors "github.com/pkg/errors"
)

// The functions below let callers import a single errors package for both coded errors and stack-carrying wrapping.

func New(msg string) error {
	return pkgerrors.New(msg)
}

func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

func WithStack(err error) error {
	return pkgerrors.WithStack(err)
}

func Wrap(err error, msg string) error {
	return pkgerrors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func Error(msg string) error {
	return New(msg)
}

func Cause(err error) error {
	return pkgerrors.Cause(err)
}
