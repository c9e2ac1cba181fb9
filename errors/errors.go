// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"
)

type ErrorCode int

const (
	ConsistencyViolation ErrorCode = iota + 1000
	UnknownReader
	UnknownDocument
	RemoteFetchFailed ErrorCode = iota + 2000
	Unavailable
	ConnectionError
	Cancelled
	InvalidConfiguration ErrorCode = iota + 3000
	InternalError        ErrorCode = iota + 5000
)

func (e ErrorCode) String() string {
	switch e {
	case ConsistencyViolation:
		return "consistency-violation"
	case UnknownReader:
		return "unknown-reader"
	case UnknownDocument:
		return "unknown-document"
	case RemoteFetchFailed:
		return "remote-fetch-failed"
	case Unavailable:
		return "unavailable"
	case ConnectionError:
		return "connection-error"
	case Cancelled:
		return "cancelled"
	case InvalidConfiguration:
		return "invalid-configuration"
	case InternalError:
		return "internal-error"
	default:
		return fmt.Sprintf("error-code-%d", int(e))
	}
}

// FetchError is the error type that crosses package and network boundaries. The code survives the transport so the
// caller can tell a remote failure apart from a protocol desync.
type FetchError struct {
	Code ErrorCode
	Msg  string
}

func (f FetchError) Error() string {
	return f.Msg
}

func NewFetchErrorf(errorCode ErrorCode, msgFormat string, args ...interface{}) FetchError {
	msg := fmt.Sprintf(msgFormat, args...)
	return FetchError{Code: errorCode, Msg: msg}
}

func NewFetchError(errorCode ErrorCode, msg string) FetchError {
	return FetchError{Code: errorCode, Msg: msg}
}

// NewConsistencyViolationf creates an error for a broken internal invariant. These are bugs in the pairing of
// registry, coordinator and fetch executor and must never be retried.
func NewConsistencyViolationf(msgFormat string, args ...interface{}) FetchError {
	return NewFetchErrorf(ConsistencyViolation, "consistency violation: "+msgFormat, args...)
}

func NewRemoteFetchFailed(readerID int32, cause error) FetchError {
	return NewFetchErrorf(RemoteFetchFailed, "fetch for reader %d failed: %v", readerID, cause)
}

func NewInternalError(errReference string) FetchError {
	return NewFetchErrorf(InternalError, "internal error - reference: %s please consult server logs for details", errReference)
}

func NewInvalidConfigurationError(msg string) FetchError {
	return NewFetchErrorf(InvalidConfiguration, "invalid configuration: %s", msg)
}

func IsFetchErrorWithCode(err error, code ErrorCode) bool {
	var ferr FetchError
	if As(err, &ferr) {
		return ferr.Code == code
	}
	return false
}

func IsConsistencyViolation(err error) bool {
	return IsFetchErrorWithCode(err, ConsistencyViolation)
}

func IsUnavailableError(err error) bool {
	return IsFetchErrorWithCode(err, Unavailable)
}
