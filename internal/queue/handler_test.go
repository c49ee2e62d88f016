package queue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, svc *Service, userID string, isAdmin bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Set("is_admin", isAdmin)
	})
	admin := func(c *gin.Context) {
		if !c.GetBool("is_admin") {
			c.AbortWithStatus(http.StatusForbidden)
		}
	}
	NewHandler(svc).RegisterRoutes(api, admin)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetQueueEndpoint(t *testing.T) {
	svc, db, _ := setup(t)
	request(t, db, "a")

	w := do(newRouter(t, svc, uuid.NewString(), false), http.MethodGet, "/api/v1/queue", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"track_id":"a"`)

	w = do(newRouter(t, svc, "", false), http.MethodGet, "/api/v1/queue", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	svc, _, _ := setup(t)
	r := newRouter(t, svc, uuid.NewString(), false)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/v1/queue/startup", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodDelete, "/api/v1/queue/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/reports/top-tracks", "").Code)
}

func TestStaffEndpoints(t *testing.T) {
	svc, db, _ := setup(t)
	r := newRouter(t, svc, uuid.NewString(), true)
	item, _ := request(t, db, "a")

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodDelete, "/api/v1/queue/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/v1/queue/"+uuid.NewString(), "").Code)

	w := do(r, http.MethodPost, "/api/v1/queue/skip", `{"queue_item_id":"`+item.ID.String()+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code, "nothing is playing yet")

	w = do(r, http.MethodPost, "/api/v1/queue/advance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), item.ID.String())

	w = do(r, http.MethodPost, "/api/v1/queue/skip", `{"queue_item_id":"`+item.ID.String()+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/v1/queue/filler", `{"track_id":"fill"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/v1/queue/startup", "").Code)
	queue, err := db.GetQueue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, queue)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/reports/top-tracks?limit=abc", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/reports/top-tracks", "").Code)
}
