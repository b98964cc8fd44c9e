package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
	"github.com/noah-isme/lesson-scheduler/pkg/middleware/requestid"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newProtectedRouter(allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := validatorStub{
		"admin":   {UserID: "u-admin", Role: models.RoleAdmin},
		"teacher": {UserID: "t-ana", Role: models.RoleTeacher},
		"root":    {UserID: "u-root", Role: models.RoleSuperAdmin},
	}
	router := gin.New()
	router.GET("/teachers/:id", JWT(tokens), RBAC(allowed...), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentClaims(c).UserID)
	})
	return router
}

func serve(router *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestJWTRequiresBearerToken(t *testing.T) {
	router := newProtectedRouter(string(models.RoleAdmin))

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/teachers/t-ana", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/teachers/t-ana", "Basic admin").Code)

	recorder := serve(router, "/teachers/t-ana", "Bearer nope")
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	ok := serve(router, "/teachers/t-ana", "bearer admin")
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "u-admin", ok.Body.String())
}

func TestRBACRolesAndSelf(t *testing.T) {
	router := newProtectedRouter(string(models.RoleAdmin), SelfRole)

	assert.Equal(t, http.StatusOK, serve(router, "/teachers/t-ana", "Bearer teacher").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, "/teachers/t-bruno", "Bearer teacher").Code)
	assert.Equal(t, http.StatusOK, serve(router, "/teachers/t-bruno", "Bearer admin").Code)
	assert.Equal(t, http.StatusOK, serve(router, "/teachers/t-bruno", "Bearer root").Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/", "").Code)
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(WithResponseMeta())
	var meta map[string]interface{}
	router.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusNoContent)
	})
	serve(router, "/", "")
	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
}

func TestResponseMetaCarriesRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(requestid.Middleware(), WithResponseMeta())
	var meta map[string]interface{}
	router.GET("/", func(c *gin.Context) {
		SetMeta(c, "count", 3)
		meta = ExtractMeta(c)
		c.Status(http.StatusNoContent)
	})
	serve(router, "/", "")
	require.NotNil(t, meta)
	assert.Equal(t, 3, meta["count"])
	assert.NotEmpty(t, meta["request_id"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestExtractMetaWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	var meta map[string]interface{}
	router.GET("/", func(c *gin.Context) {
		meta = ExtractMeta(c)
		c.Status(http.StatusNoContent)
	})
	serve(router, "/", "")
	assert.Nil(t, meta)
}

type observation struct {
	method, path string
	status       int
}

type observerStub struct{ seen []observation }

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.seen = append(o.seen, observation{method: method, path: path, status: status})
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	router := gin.New()
	router.Use(Metrics(observer, "/metrics"))
	router.GET("/lessons/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, "/lessons/l-1", "")
	serve(router, "/metrics", "")
	serve(router, "/wp-admin", "")

	require.Len(t, observer.seen, 2)
	assert.Equal(t, observation{method: http.MethodGet, path: "/lessons/:id", status: http.StatusOK}, observer.seen[0])
	assert.Equal(t, unmatchedRoute, observer.seen[1].path)
	assert.Equal(t, http.StatusNotFound, observer.seen[1].status)
}
