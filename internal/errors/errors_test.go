package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedmeta/feedmeta/internal/core"
	"github.com/feedmeta/feedmeta/internal/core/engine"
)

func TestFromDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{name: "invalid payload", err: core.ErrInvalidPayload, code: CodeInvalidInput, status: http.StatusBadRequest},
		{name: "invalid settings", err: fmt.Errorf("%w: followerColors", core.ErrInvalidSettings), code: CodeInvalidInput, status: http.StatusBadRequest},
		{name: "persistence", err: fmt.Errorf("%w: disk full", engine.ErrPersistence), code: CodeDatabase, status: http.StatusInternalServerError},
		{name: "stopped", err: engine.ErrSchedulerStopped, code: CodeServiceUnavailable, status: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, code: CodeTimeout, status: http.StatusGatewayTimeout},
		{name: "other", err: fmt.Errorf("boom"), code: CodeInternal, status: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := FromDomainError(context.Background(), tc.err)
			require.NotNil(t, env)
			assert.Equal(t, tc.code, env.Code)
			assert.Equal(t, tc.status, HTTPStatusFromEnvelope(env))
			assert.NotEmpty(t, env.CorrelationID)
			assert.Equal(t, tc.err.Error(), env.Context["wrapped_error"])
		})
	}

	assert.Nil(t, FromDomainError(context.Background(), nil))
}

func TestRespondWithDomainError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/import", nil)
	rec := httptest.NewRecorder()

	RespondWithDomainError(rec, req, core.ErrInvalidPayload)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeInvalidInput, body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestEnsureEnvelope(t *testing.T) {
	env := EnsureEnvelope(nil)
	assert.Equal(t, CodeInternal, env.Code)

	original := NewNotFoundError("missing")
	assert.Same(t, original, EnsureEnvelope(original))

	wrapped := EnsureEnvelope(fmt.Errorf("plain"))
	assert.Equal(t, CodeInternal, wrapped.Code)
	assert.Equal(t, "plain", wrapped.Context["wrapped_error"])
}

func TestHTTPStatusFromCode(t *testing.T) {
	assert.Equal(t, http.StatusMethodNotAllowed, HTTPStatusFromCode(CodeMethodNotAllowed))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromCode(CodeNotFound))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode(CodeDatabase))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_ELSE"))
}
