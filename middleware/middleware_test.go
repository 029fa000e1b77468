package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/x", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("subject")})
	})
	return r
}

func do(r http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareOpenWithoutSecret(t *testing.T) {
	w := do(newRouter(AuthMiddleware("")), "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareRequiresValidToken(t *testing.T) {
	r := newRouter(AuthMiddleware("s3cret"))

	assert.Equal(t, http.StatusUnauthorized, do(r, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Authorization", "Basic a b").Code)

	token, err := utils.GenerateToken("s3cret", "cli", "admin", time.Hour)
	require.NoError(t, err)
	w := do(r, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subject":"cli"`)

	assert.Equal(t, http.StatusOK, do(r, "X-Auth-Token", token).Code)
}

func TestOptionalAuthMiddlewareNeverRejects(t *testing.T) {
	r := newRouter(OptionalAuthMiddleware("s3cret"))
	w := do(r, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subject":""`)
}

func TestRateLimiterRejectsAfterBurst(t *testing.T) {
	rl := NewRateLimiter(2)
	r := newRouter(rl.Middleware())

	assert.Equal(t, http.StatusOK, do(r, "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, "", "").Code)
	w := do(r, "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.getLimiter("1.1.1.1")
	require.Len(t, rl.limiters, 1)

	now = now.Add(10 * time.Minute)
	rl.getLimiter("2.2.2.2")
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "2.2.2.2")
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := newRouter(RequestLogger(logger.Nop()))
	w := do(r, RequestIDHeader, "rid-1")
	assert.Equal(t, "rid-1", w.Header().Get(RequestIDHeader))

	w = do(r, "", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
