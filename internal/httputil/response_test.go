package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "test error", resp["error"])
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"n": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"n":3}`, rec.Body.String())
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(http.ResponseWriter)
		want int
	}{
		{"ok", func(w http.ResponseWriter) { WriteJSONOK(w, struct{}{}) }, http.StatusOK},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "x") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "x") }, http.StatusNotFound},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "x") }, http.StatusInternalServerError},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "x") }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.fn(rec)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireGET(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	assert.True(t, RequireGET(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

	rec = httptest.NewRecorder()
	assert.False(t, RequireGET(rec, httptest.NewRequest(http.MethodPost, "/", nil)))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query  string
		want   int
		wantOK bool
	}{
		{"", 10, true},
		{"n=5", 5, true},
		{"n=0", 0, true},
		{"n=256", 0, false},
		{"n=-1", 0, false},
		{"n=abc", 0, false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		got, ok := QueryInt(r, "n", 10, 0, 255)
		assert.Equal(t, tt.wantOK, ok, tt.query)
		assert.Equal(t, tt.want, got, tt.query)
	}
}
