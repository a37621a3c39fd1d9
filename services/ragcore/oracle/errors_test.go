package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOracleParseError_UnwrapsAndReports(t *testing.T) {
	cause := errors.New("unexpected token")
	err := &OracleParseError{Operation: "grade", RawReply: "not json", Cause: cause}

	assert.True(t, IsOracleParseError(err))
	assert.False(t, IsOracleTransportError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "grade")
}

func TestOracleTransportError_UnwrapsAndReports(t *testing.T) {
	cause := errors.New("connection reset")
	err := &OracleTransportError{Operation: "answer", Attempts: 3, Cause: cause}

	assert.True(t, IsOracleTransportError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "3 attempts")
}
