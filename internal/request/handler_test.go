package request

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSubmitRequestEndpoint(t *testing.T) {
	svc, _, _ := setup(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	user := uuid.NewString()
	api := r.Group("/api/v1", func(c *gin.Context) { c.Set("user_id", user) })
	NewHandler(svc).RegisterRoutes(api)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)
	assert.Equal(t, http.StatusNotFound, post(`{"track_id":"nope"}`).Code)

	w := post(`{"track_id":"short"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"added":true`)

	w = post(`{"track_id":"other"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"added":false`)
	assert.Contains(t, w.Body.String(), `"reason":"cooldownActive"`)
}
