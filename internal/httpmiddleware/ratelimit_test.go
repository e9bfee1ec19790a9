package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestAllowRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewSimpleTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"))

	now = now.Add(time.Minute)
	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
}

func TestDisabledLimiter(t *testing.T) {
	l := NewSimpleTokenBucket(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("x"))
	}
}

func TestSweep(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewSimpleTokenBucket(10, 60)
	l.now = func() time.Time { return now }
	l.Allow("a")

	require.Equal(t, 0, l.Sweep())
	now = now.Add(11 * time.Second)
	require.Equal(t, 1, l.Sweep())
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewSimpleTokenBucket(1, 1)
	r := gin.New()
	r.Use(l.GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "rate_limited")
}
