package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-interview-backend/internal/domain"
	"go-interview-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestToAppError(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, ToAppError(fmt.Errorf("get event: %w", domain.ErrProviderNotFound)).Code)
	assert.Equal(t, http.StatusNotFound, ToAppError(domain.ErrNotFound).Code)
	assert.Equal(t, http.StatusBadRequest, ToAppError(fmt.Errorf("%w: title", domain.ErrInvalidInput)).Code)
	assert.Equal(t, http.StatusTeapot, ToAppError(apperror.New(http.StatusTeapot, "tea", nil)).Code)
	assert.Equal(t, http.StatusInternalServerError, ToAppError(fmt.Errorf("boom")).Code)
}

func TestCurrentActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(string(domain.KeyUserID), "u-1")
	c.Set(string(domain.KeyUserRole), domain.RoleEmployer)
	c.Set(string(domain.KeyCompanyID), "company-1")

	assert.Equal(t, domain.Actor{UserID: "u-1", Role: domain.RoleEmployer, CompanyID: "company-1"}, CurrentActor(c))
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com/"}, true))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := preflight("https://app.example.com")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = preflight("http://localhost:3000")
	assert.Equal(t, http.StatusForbidden, w.Code, "localhost is refused in production")
}

func TestRateLimitInMemoryFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := WebhookRateLimitConfig(2, time.Minute)
	cfg.KeyPrefix = "rl:test:" + t.Name() + ":"

	r := gin.New()
	r.POST("/hook", RateLimitMiddleware(cfg), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/hook", nil)
		req.Header.Set("X-Goog-Channel-ID", "ch-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("Production sends HSTS and no-store for authenticated calls", func(t *testing.T) {
		r := gin.New()
		r.Use(SecurityHeadersMiddleware(true))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer t")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	})

	t.Run("Development skips HSTS", func(t *testing.T) {
		r := gin.New()
		r.Use(SecurityHeadersMiddleware(false))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Empty(t, w.Header().Get("Cache-Control"))
	})
}
