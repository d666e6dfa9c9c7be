package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"message": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		err = json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()
		require.NoError(t, WriteJSON(w, http.StatusAccepted, nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter) error
		wantStatus int
		wantError  string
		wantMsg    string
	}{
		{"bad request", func(w http.ResponseWriter) error { return WriteBadRequest(w, "bad input", nil) }, http.StatusBadRequest, "bad_request", "bad input"},
		{"unauthorized default", func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") }, http.StatusUnauthorized, "unauthorized", "Authentication required"},
		{"not found", func(w http.ResponseWriter) error { return WriteNotFound(w, "") }, http.StatusNotFound, "not_found", "Resource not found"},
		{"bad gateway", func(w http.ResponseWriter) error { return WriteBadGateway(w, "all failed", nil) }, http.StatusBadGateway, "bad_gateway", "all failed"},
		{"internal", func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") }, http.StatusInternalServerError, "internal_error", "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Model string `json:"model"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"model":"auto"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "auto", dst.Model)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.EqualError(t, DecodeJSON(req, &dst), "request body is empty")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"model":`))
	assert.ErrorContains(t, DecodeJSON(req, &dst), "invalid JSON")
}
