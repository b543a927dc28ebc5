package students

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/chirino/student-memory-service/internal/memory"
	"github.com/chirino/student-memory-service/internal/plugin/store/sqlite"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	s, err := sqlite.Open(ctx, "file:"+filepath.Join(t.TempDir(), "routes.db")+"?_foreign_keys=on", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, sqlite.AutoMigrate(ctx, s.DB()))

	r := gin.New()
	MountRoutes(r, memory.NewService(s, memory.Options{Budget: 2000}))
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestStudentProfileRoundTrip(t *testing.T) {
	r := newRouter(t)

	w := do(t, r, http.MethodPut, "/v1/students/maya", map[string]any{"displayName": "Maya", "ageGroup": "11-13"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/v1/students/maya", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "maya", body["studentId"])
	assert.Equal(t, "Maya", body["displayName"])
	assert.Equal(t, "11-13", body["ageGroup"])

	w = do(t, r, http.MethodGet, "/v1/students/nobody", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["code"])
}

func TestRecordFactValidation(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPut, "/v1/students/s1", map[string]any{}).Code)

	w := do(t, r, http.MethodPost, "/v1/students/s1/facts", map[string]any{"factType": "hobby", "factText": "chess"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "validation_error", body["code"])
	assert.Equal(t, "factType", body["field"])

	w = do(t, r, http.MethodPost, "/v1/students/s1/facts", map[string]any{"factType": "interest", "factText": "chess", "confidence": 1.5})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "confidence", decode(t, w)["field"])

	w = do(t, r, http.MethodPost, "/v1/students/ghost/facts", map[string]any{"factType": "interest", "factText": "chess"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestFactLifecycle(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPut, "/v1/students/s1", map[string]any{"firstName": "Sam"}).Code)

	w := do(t, r, http.MethodPost, "/v1/students/s1/facts", map[string]any{
		"factType": "struggle-area",
		"factText": "fractions with unlike denominators",
		"source":   "parent",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "struggle", created["factType"])
	assert.Equal(t, "parent", created["source"])
	assert.Equal(t, true, created["isActive"])
	factID := created["id"].(string)

	w = do(t, r, http.MethodGet, "/v1/students/s1/facts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	require.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/v1/facts/"+factID, nil).Code)
	// Deactivation is idempotent.
	require.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/v1/facts/"+factID, nil).Code)

	w = do(t, r, http.MethodGet, "/v1/students/s1/facts", nil)
	assert.Len(t, decode(t, w)["data"], 0)

	w = do(t, r, http.MethodGet, "/v1/students/s1/facts?includeInactive=true", nil)
	facts := decode(t, w)["data"].([]any)
	require.Len(t, facts, 1)
	assert.Equal(t, false, facts[0].(map[string]any)["isActive"])

	require.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/v1/students/s1/facts?includeInactive=maybe", nil).Code)
	require.Equal(t, http.StatusBadRequest, do(t, r, http.MethodDelete, "/v1/facts/not-a-uuid", nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/v1/facts/"+uuid.NewString(), nil).Code)
}

func TestMemoryContextEndpoints(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPut, "/v1/students/maya", map[string]any{
		"displayName": "Maya", "ageGroup": "11-13", "studyLevel": "Year 7",
	}).Code)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/v1/students/maya/facts", map[string]any{
		"factType": "struggle", "factText": "Finds fractions confusing",
	}).Code)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/v1/students/maya/facts", map[string]any{
		"factType": "interest", "factText": "Loves football",
	}).Code)

	w := do(t, r, http.MethodGet, "/v1/students/maya/memory-context?topic=fractions", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "maya", body["studentId"])
	assert.Equal(t, "fractions", body["topic"])
	assert.Equal(t, false, body["degraded"])
	facts := body["facts"].([]any)
	require.Len(t, facts, 1)
	assert.Equal(t, "Finds fractions confusing", facts[0].(map[string]any)["factText"])
	prompt := body["prompt"].(string)
	assert.Contains(t, prompt, "Student: Maya | Age group: 11-13 | Study level: Year 7")
	assert.Contains(t, prompt, "- [struggle] Finds fractions confusing")
	assert.NotContains(t, prompt, "football")

	w = do(t, r, http.MethodPost, "/v1/students/maya/memory-context/prompt", map[string]any{
		"profile": map[string]any{"displayName": "M.", "studyLevel": "Year 8"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	prompt = body["prompt"].(string)
	assert.Contains(t, prompt, "Student: M. | Age group: 11-13 | Study level: Year 8")
	assert.Contains(t, prompt, "football")
	assert.Equal(t, false, body["degraded"])

	w = do(t, r, http.MethodPost, "/v1/students/maya/memory-context/prompt", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/v1/students/ghost/memory-context", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["code"])
}

func TestHandleErrorMapsTransientToUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
	}{
		{&registrystore.TransientError{Op: "list", Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{&memory.StudentNotFoundError{StudentID: "x"}, http.StatusNotFound},
		{&registrystore.ValidationError{Field: "studentId", Message: "is required"}, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		handleError(c, tc.err)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}
