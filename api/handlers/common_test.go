package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/types"
)

func TestWriteSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-42"))

	WriteSuccess(rec, req, map[string]string{"ok": "yes"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code   types.ErrorCode
		status int
	}{
		{types.ErrInvalidArgument, http.StatusBadRequest},
		{types.ErrAuthentication, http.StatusUnauthorized},
		{types.ErrQuotaExceeded, http.StatusPaymentRequired},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrNoActiveRun, http.StatusNotFound},
		{types.ErrHandoffInProgress, http.StatusConflict},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{types.ErrRunStartFailed, http.StatusBadGateway},
		{types.ErrStopFailed, http.StatusServiceUnavailable},
		{types.ErrUnavailable, http.StatusServiceUnavailable},
		{types.ErrPersistence, http.StatusInternalServerError},
		{types.ErrInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			WriteError(rec, req, types.NewError(tt.code, "boom"), zap.NewNop())
			assert.Equal(t, tt.status, rec.Code)

			var resp Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.code), resp.Error.Code)
		})
	}
}

func TestWriteErrorExplicitStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	err := types.NewError(types.ErrInvalidArgument, "teapot").WithHTTPStatus(http.StatusTeapot)
	WriteError(rec, req, err, zap.NewNop())
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestWriteAnyErrorWrapsPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	WriteAnyError(rec, req, assert.AnError, zap.NewNop())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
}

func TestDecodeJSONBodyStrict(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSONBody(rec, req, &dst, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSONBody(rec, req, &dst, zap.NewNop()))
	assert.Equal(t, "a", dst.Name)
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusOK) // second call is ignored
	_, _ = rw.Write([]byte("ok"))

	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestResponseWriterForwardsFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	var _ http.Flusher = rw
	rw.Flush()
	assert.True(t, rec.Flushed)

	assert.Same(t, http.ResponseWriter(rec), rw.Unwrap())
}
