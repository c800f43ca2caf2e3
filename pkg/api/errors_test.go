package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/skillforge/engine/pkg/checkpoint"
	"github.com/skillforge/engine/pkg/credentials"
	"github.com/skillforge/engine/pkg/executor/restexec"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestWriteError_MapsKnownSentinelsToExpectedStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"no checkpoint", checkpoint.ErrNoCheckpoint, http.StatusNotFound},
		{"credential not found", credentials.ErrNotFound, http.StatusBadRequest},
		{"unknown callback token", restexec.ErrUnknownToken, http.StatusConflict},
		{"callback already consumed", restexec.ErrAlreadyConsumed, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			writeError(c, tc.err)

			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestWriteError_UnknownErrorMapsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	writeError(c, assertErr("something went sideways"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
