package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode_MapsStatusErrorsToSpecCodes(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 3, exitCode(&httpStatusError{status: http.StatusNotFound}))
	assert.Equal(t, 4, exitCode(&httpStatusError{status: http.StatusUnauthorized}))
	assert.Equal(t, 4, exitCode(&httpStatusError{status: http.StatusForbidden}))
	assert.Equal(t, 2, exitCode(&httpStatusError{status: http.StatusInternalServerError}))
}

func TestExitCode_NonStatusErrorIsRuntimeFailure(t *testing.T) {
	assert.Equal(t, 2, exitCode(assertErr("connection refused")))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
