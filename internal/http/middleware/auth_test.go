package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

type stubResolver struct {
	keys   map[string]*domain.Account
	tokens map[string]*domain.Account
}

func (s stubResolver) ResolveAPIKey(_ context.Context, key string) (*domain.Account, error) {
	if a, ok := s.keys[key]; ok {
		return a, nil
	}
	return nil, errors.New("no such key")
}

func (s stubResolver) ResolveToken(_ context.Context, raw string) (*domain.Account, error) {
	if a, ok := s.tokens[raw]; ok {
		return a, nil
	}
	return nil, errors.New("bad token")
}

func newAuthRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), mw)
	r.GET("/who", func(c *gin.Context) {
		c.String(http.StatusOK, AccountIDFrom(c))
	})
	return r
}

func TestAPIKeyAuth(t *testing.T) {
	acct := &domain.Account{ID: "acct-1"}
	r := newAuthRouter(APIKeyAuth(stubResolver{keys: map[string]*domain.Account{"cb_good": acct}}))

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"header", "cb_good", "", http.StatusOK},
		{"query fallback", "", "?apiKey=cb_good", http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"unknown", "cb_bad", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/who"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set(HeaderAPIKey, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			if tc.status == http.StatusOK && w.Body.String() != "acct-1" {
				t.Fatalf("account id=%q", w.Body.String())
			}
			if tc.status == http.StatusUnauthorized {
				if body := decodeBody(t, w); body["code"] != "unauthorized" {
					t.Fatalf("code=%v", body["code"])
				}
			}
		})
	}
}

func TestBearerAuth(t *testing.T) {
	acct := &domain.Account{ID: "acct-2"}
	r := newAuthRouter(BearerAuth(stubResolver{tokens: map[string]*domain.Account{"tok": acct}}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer tok", http.StatusOK},
		{"no scheme", "tok", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/who", nil)
			req.Header.Set("Authorization", tc.header)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
		})
	}
}

func TestAdminAuth(t *testing.T) {
	t.Run("disabled without key", func(t *testing.T) {
		r := newAuthRouter(AdminAuth(""))
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		req.Header.Set(HeaderAdminKey, "")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("status=%d", w.Code)
		}
	})

	r := newAuthRouter(AdminAuth("op-secret"))
	for key, want := range map[string]int{
		"op-secret": http.StatusOK,
		"wrong":     http.StatusUnauthorized,
		"":          http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		if key != "" {
			req.Header.Set(HeaderAdminKey, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("key %q: status=%d want %d", key, w.Code, want)
		}
	}
}

func TestAccountFrom_Empty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if AccountFrom(c) != nil || AccountIDFrom(c) != "" {
		t.Fatal("expected no account on a fresh context")
	}
}
