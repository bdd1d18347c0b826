package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/widget-chat-backend/internal/billing"
	"github.com/tbourn/widget-chat-backend/internal/services"
)

func Test_fail_500_LogsCauseAndHidesIt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) {
		failErr(c, errors.New("db exploded"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != ErrCodeInternal || strings.Contains(resp.Message, "exploded") {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), "db exploded") {
		t.Fatalf("expected error log with cause, got: %s", buf.String())
	}
}

func Test_Fail_4xxNotLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/missing", func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound || buf.Len() != 0 {
		t.Fatalf("status=%d log=%q", w.Code, buf.String())
	}
}

func Test_failErr_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrQuotaExceeded, http.StatusTooManyRequests, ErrCodeQuotaExceeded},
		{fmt.Errorf("turn: %w", services.ErrSessionNotFound), http.StatusNotFound, ErrCodeSessionNotFound},
		{services.ErrSessionForbidden, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrConcurrentWriteConflict, http.StatusServiceUnavailable, ErrCodeWriteConflict},
		{services.ErrEmptyMessage, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrAlreadyRated, http.StatusConflict, ErrCodeAlreadyRated},
		{services.ErrEmailTaken, http.StatusConflict, ErrCodeEmailTaken},
		{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized},
		{services.ErrInvalidPlan, http.StatusBadRequest, ErrCodeInvalidPlan},
		{billing.ErrNotConfigured, http.StatusServiceUnavailable, ErrCodeBillingDisabled},
		{billing.ErrInvalidSignature, http.StatusBadRequest, ErrCodeInvalidSignature},
	}
	for _, tc := range cases {
		t.Run(tc.code+"/"+tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			failErr(c, tc.err)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			var resp ErrorResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Code != tc.code {
				t.Fatalf("code=%q want %q", resp.Code, tc.code)
			}
		})
	}
}

func Test_newPagination(t *testing.T) {
	p := newPagination(2, 10, 25)
	if p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("unexpected %+v", p)
	}
	p = newPagination(3, 10, 25)
	if p.HasNext {
		t.Fatalf("last page should not have next: %+v", p)
	}
	if p = newPagination(1, 20, 0); p.TotalPages != 0 || p.HasNext {
		t.Fatalf("empty result %+v", p)
	}
}
