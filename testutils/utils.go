package testutils

import (
	"testing"
	"time"

	"github.com/spirit-labs/docfetch/errors"
	"github.com/stretchr/testify/require"
)

func WaitUntil(t *testing.T, predicate Predicate) {
	t.Helper()
	WaitUntilWithDur(t, predicate, 10*time.Second)
}

func WaitUntilWithDur(t *testing.T, predicate Predicate, timeout time.Duration) {
	t.Helper()
	complete, err := WaitUntilWithError(predicate, timeout, time.Millisecond)
	require.NoError(t, err)
	require.True(t, complete, "timed out waiting for predicate")
}

type Predicate func() (bool, error)

func WaitUntilWithError(predicate Predicate, timeout time.Duration, sleepTime time.Duration) (bool, error) {
	start := time.Now()
	for {
		complete, err := predicate()
		if err != nil {
			return false, err
		}
		if complete {
			return true, nil
		}
		time.Sleep(sleepTime)
		if time.Since(start) >= timeout {
			return false, nil
		}
	}
}

// RequireErrorCode fails the test unless err is a FetchError, possibly wrapped, with the given code.
func RequireErrorCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var ferr errors.FetchError
	require.True(t, errors.As(err, &ferr), "not a fetch error: %v", err)
	require.Equal(t, code, ferr.Code, "unexpected code for error: %v", err)
}
