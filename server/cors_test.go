package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localOrigin = "http://localhost:5173"

func corsRouter(t *testing.T, marker string) (*gin.Engine, bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mw, restricted, err := corsMiddleware(marker, localOrigin)
	require.NoError(t, err)

	r := gin.New()
	r.Use(mw)
	addHealth(r)
	return r, restricted
}

func get(r *gin.Engine, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", origin)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCorsWithoutMarkerAllowsAnyOrigin(t *testing.T) {
	r, restricted := corsRouter(t, filepath.Join(t.TempDir(), ".cors.json"))
	assert.False(t, restricted)

	rec := get(r, "https://example.org")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsWithMarkerRestrictsToLocalFrontend(t *testing.T) {
	marker := filepath.Join(t.TempDir(), ".cors.json")
	require.NoError(t, os.WriteFile(marker, []byte("{}"), 0o644))

	r, restricted := corsRouter(t, marker)
	assert.True(t, restricted)

	rec := get(r, localOrigin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, localOrigin, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(r, "https://example.org")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsPreflight(t *testing.T) {
	r, _ := corsRouter(t, filepath.Join(t.TempDir(), "missing"))

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}
