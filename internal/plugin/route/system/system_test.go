package system

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	Reset()
	t.Cleanup(Reset)
	r := gin.New()
	require.NoError(t, MountRoutes(r))
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthAlwaysOK(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusOK, get(r, "/health").Code)
}

func TestReadyTransitions(t *testing.T) {
	r := newRouter(t)

	w := get(r, "/ready")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "starting")

	MarkReady()
	require.Equal(t, http.StatusOK, get(r, "/ready").Code)

	SetReadinessCheck(func(context.Context) error { return errors.New("connection refused") })
	w = get(r, "/ready")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "connection refused")

	SetReadinessCheck(func(context.Context) error { return nil })
	require.Equal(t, http.StatusOK, get(r, "/ready").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(t)
	w := get(r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}
