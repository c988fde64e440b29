package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/carbonledger/internal/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"name": "test"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "test", decode(t, w)["name"])
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()
	response.Created(w, map[string]string{"apiKey": "sk_live_x"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "sk_live_x", decode(t, w)["apiKey"])
}

func TestOK_WithData(t *testing.T) {
	w := httptest.NewRecorder()
	response.OK(w, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "abc", body["data"].(map[string]any)["id"])
}

func TestOK_WithoutData(t *testing.T) {
	w := httptest.NewRecorder()
	response.OK(w, http.StatusOK, nil)

	body := decode(t, w)
	assert.Equal(t, map[string]any{"success": true}, body)
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "factor_id is required")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, "factor_id is required", body["error"])
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Len(t, body, 2)
}

func TestDegraded(t *testing.T) {
	w := httptest.NewRecorder()
	response.Degraded(w, http.StatusInternalServerError, "INTERNAL_ERROR", "db down", map[string]any{
		"factors":    []any{},
		"categories": []any{},
		"error":      "overwritten",
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "db down", body["error"])
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.Equal(t, []any{}, body["factors"])
	assert.Equal(t, []any{}, body["categories"])
}
