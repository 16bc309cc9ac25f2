package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contractguard/contractguard/internal/config"
	"github.com/contractguard/contractguard/internal/service"
	"github.com/gin-gonic/gin"
)

func TestTraceMiddlewareGeneratesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		if c.GetString(ContextTraceID) == "" {
			t.Error("trace id missing from context")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Trace-ID") == "" {
		t.Fatalf("trace headers not set")
	}
}

func TestTraceMiddlewarePropagatesInboundID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "caller-supplied" {
		t.Fatalf("inbound trace id not propagated: %s", w.Header().Get("X-Request-ID"))
	}
}

func TestAuthMiddlewareTenantResolution(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Auth.RequireAPIKey = true
	tm := service.NewTenantManager(cfg, nil)

	r := gin.New()
	r.Use(AuthMiddleware(cfg, tm))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	// 无 key 且要求鉴权 → 401
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	// 默认租户的 key 放行
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderGatewayKey, "sk-default-12345")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with default key, got %d", w.Code)
	}

	// 未知 key → 401
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderGatewayKey, "sk-wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad key, got %d", w.Code)
	}
}

func TestAdminMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Auth.AdminKey = "admin-secret"

	r := gin.New()
	r.Use(AdminMiddleware(cfg))
	r.GET("/admin/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin key, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set(HeaderAdminKey, "admin-secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin key, got %d", w.Code)
	}

	// admin key 未配置时一律拒绝
	r2 := gin.New()
	r2.Use(AdminMiddleware(&config.Config{}))
	r2.GET("/admin/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	w = httptest.NewRecorder()
	r2.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when unconfigured, got %d", w.Code)
	}
}
