package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func testContext(remote string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort(remote, "12345")
	c.Request = req
	return c
}

func TestKeyFuncs(t *testing.T) {
	c := testContext("203.0.113.9")
	if got := KeyByAccountOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("account key fallback=%q", got)
	}
	if got := KeyByAPIKeyOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("api key fallback=%q", got)
	}

	c.Set(accountIDKey, "acct-9")
	if got := KeyByAccountOrIP()(c); got != "acct:acct-9" {
		t.Fatalf("account key=%q", got)
	}
	c.Request.Header.Set(HeaderAPIKey, "cb_k")
	if got := KeyByAPIKeyOrIP()(c); got != "key:cb_k" {
		t.Fatalf("api key=%q", got)
	}
}

func TestRateLimiter_ReusesAndEvicts(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyByAccountOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst=%d", rl.burst)
	}
	lim := rl.limiter("k1")
	if rl.limiter("k1") != lim {
		t.Fatal("bucket should be reused")
	}

	rl.mu.Lock()
	rl.ttl = time.Nanosecond
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.lookups = 4999
	rl.mu.Unlock()

	_ = rl.limiter("new")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["old"]; ok {
		t.Fatal("idle bucket should be evicted")
	}
	if _, ok := rl.visitors["new"]; !ok {
		t.Fatal("requested bucket missing")
	}
}

func TestRateLimiter_Handler429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.0001, 1, KeyByAccountOrIP())
	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.1:1"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	if w := do(); w.Code != http.StatusOK {
		t.Fatalf("first status=%d", w.Code)
	}
	w := do()
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second status=%d retry=%q", w.Code, w.Header().Get("Retry-After"))
	}
	if body := decodeBody(t, w); body["code"] != "rate_limited" {
		t.Fatalf("code=%v", body["code"])
	}
}
