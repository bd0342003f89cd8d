package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-engine/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestCORSPolicyAllowOrigin(t *testing.T) {
	cases := []struct {
		name        string
		origins     []string
		credentials bool
		origin      string
		want        string
	}{
		{"default wildcard", nil, false, "https://shop.example.com", "*"},
		{"wildcard echoes origin with credentials", []string{"*"}, true, "https://shop.example.com", "https://shop.example.com"},
		{"allow-list match ignores case", []string{"https://Shop.Example.com"}, false, "https://shop.example.com", "https://shop.example.com"},
		{"allow-list miss", []string{"https://shop.example.com"}, false, "https://evil.example.com", ""},
		{"no origin header", []string{"https://shop.example.com"}, false, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := newCORSPolicy(config.CORSConfig{AllowedOrigins: tc.origins, AllowCredentials: tc.credentials})
			if got := policy.allowOrigin(tc.origin); got != tc.want {
				t.Fatalf("allowOrigin(%q) want %q got %q", tc.origin, tc.want, got)
			}
		})
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"https://shop.example.com"}, MaxAge: 600}))
	r.POST("/api/v1/checkout", func(c *gin.Context) {
		t.Fatalf("preflight should not reach handler")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/checkout", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status want 204 got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example.com" {
		t.Fatalf("allow origin want echoed origin got %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("max age want 600 got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, requestIDHeader) {
		t.Fatalf("allow headers should include %s, got %q", requestIDHeader, got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("response request id want req-123 got %s", w.Header().Get(requestIDHeader))
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["request_id"] != "req-123" {
		t.Fatalf("context request id want req-123 got %s", resp["request_id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	if _, err := uuid.Parse(w2.Header().Get(requestIDHeader)); err != nil {
		t.Fatalf("generated request id should be a uuid: %v", err)
	}
}

func TestAdminJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const secret = "test-secret"

	r := gin.New()
	r.Use(AdminJWTMiddleware(secret))
	r.GET("/admin/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString(adminSubjectCtxKey)})
	})

	valid, err := GenerateAdminToken(secret, "ops", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}
	expired, err := GenerateAdminToken(secret, "ops", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("generate expired token failed: %v", err)
	}
	foreign, err := GenerateAdminToken("other-secret", "ops", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("generate foreign token failed: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", 401},
		{"not bearer", "Token " + valid, 401},
		{"expired", "Bearer " + expired, 401},
		{"wrong secret", "Bearer " + foreign, 401},
		{"valid", "Bearer " + valid, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			var resp struct {
				StatusCode int    `json:"status_code"`
				Subject    string `json:"subject"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal response failed: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status_code want %d got %d", tc.want, resp.StatusCode)
			}
			if tc.want == 0 && resp.Subject != "ops" {
				t.Fatalf("subject want ops got %q", resp.Subject)
			}
		})
	}
}

func TestAdminJWTMiddlewareMissingSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AdminJWTMiddleware(""))
	r.GET("/admin/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("status_code want 401 got %d", resp.StatusCode)
	}
}

func TestGenerateAdminTokenValidatesInput(t *testing.T) {
	if _, err := GenerateAdminToken("", "ops", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := GenerateAdminToken("secret", " ", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}
