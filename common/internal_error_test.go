package common

import (
	"strings"
	"testing"

	"github.com/spirit-labs/docfetch/errors"
	"github.com/stretchr/testify/require"
)

func TestLogInternalErrorHidesCause(t *testing.T) {
	err := LogInternalError(errors.New("segment file corrupt at offset 1234"))
	require.Equal(t, errors.InternalError, err.Code)
	require.False(t, strings.Contains(err.Error(), "segment file corrupt"))
	require.True(t, strings.Contains(err.Error(), "reference"))
}
