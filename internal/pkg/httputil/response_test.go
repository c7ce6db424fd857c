package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	Accepted(rec, map[string]string{"state": "sending"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"state":"sending"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	ErrorCode(rec, http.StatusConflict, "dispatch_busy", "another dispatch is in progress")
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "dispatch_busy", body.Code)

	rec = httptest.NewRecorder()
	InternalError(rec, errors.New("pq: relation does not exist"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestDecode(t *testing.T) {
	var dst struct{ Name string }

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Alex"}`))
	assert.True(t, Decode(rec, req, &dst, false))
	assert.Equal(t, "Alex", dst.Name)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.True(t, Decode(rec, req, &dst, true))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	assert.False(t, Decode(rec, req, &dst, false))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
