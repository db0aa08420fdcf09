package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/dunehd-hub-go/internal/apperrors"
)

func TestHandlerWritesAppError(t *testing.T) {
	handler := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewNotFoundResource("Device", "abc")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/devices/abc", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body StripeErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "NOT_FOUND", body.Error.Code)
	require.Equal(t, apperrors.ErrorTypeInvalidRequest, body.Error.Type)
	require.Empty(t, body.RequestID)
}

func TestWriteErrorIncludesRequestID(t *testing.T) {
	handler := RequestIDMiddleware(Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewValidationError("cmd_id is required", map[string]any{"field": "cmd_id"})
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/entities/x/commands", nil)
	req.Header.Set("x-request-id", "req-7")
	handler.ServeHTTP(rec, req)

	var body StripeErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "req-7", body.RequestID)
	require.Equal(t, "cmd_id", body.Error.Param)
}

func TestRecovererMiddleware(t *testing.T) {
	handler := RecovererMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-request-id", "req-1")
	handler.ServeHTTP(rec, req)
	require.Equal(t, "req-1", seen)
	require.Equal(t, "req-1", rec.Header().Get("x-request-id"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.NotEqual(t, "req-1", seen)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-request-id", "has space")
	handler.ServeHTTP(rec, req)
	require.NotEqual(t, "has space", seen)
	require.Equal(t, seen, rec.Header().Get("x-request-id"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-request-id", strings.Repeat("a", 65))
	handler.ServeHTTP(rec, req)
	require.Len(t, seen, 36)
}

func TestRequestIDFromContext(t *testing.T) {
	require.Empty(t, RequestIDFromContext(context.Background()))
	require.Equal(t, "abc", RequestIDFromContext(WithRequestID(context.Background(), "abc")))
	require.Empty(t, GetRequestID(nil))
}

func TestHandlerWrapsPlainErrors(t *testing.T) {
	handler := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("disk on fire")
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestDecodeJSON(t *testing.T) {
	var payload struct {
		Address string `json:"address"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"address":"10.0.0.5"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	require.NoError(t, DecodeJSON(req, &payload))
	require.Equal(t, "10.0.0.5", payload.Address)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	require.NoError(t, DecodeJSON(req, &payload))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	err := DecodeJSON(req, &payload)
	require.Equal(t, apperrors.ErrorCodeValidationError, apperrors.EnsureAppError(err).Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	err = DecodeJSON(req, &payload)
	require.Equal(t, http.StatusUnsupportedMediaType, apperrors.EnsureAppError(err).StatusCode)
}

func TestWriteList(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteList(rec, "/v1/devices", []string{"a"}, false))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "list", body["object"])
	require.Equal(t, "/v1/devices", body["url"])
}
