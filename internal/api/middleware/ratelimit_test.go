package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/isdelr/blog-be/internal/api/middleware"
)

func TestRateLimiter(t *testing.T) {
	c := qt.New(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := middleware.NewRateLimiter(3).Limit(ok)

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		c.Assert(do("10.0.0.1:1234"), qt.Equals, http.StatusOK)
	}
	// Same host, different source port.
	c.Assert(do("10.0.0.1:5678"), qt.Equals, http.StatusTooManyRequests)
	c.Assert(do("10.0.0.2:1234"), qt.Equals, http.StatusOK)
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	c := qt.New(t)
	h := middleware.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	c.Assert(w.Code, qt.Equals, http.StatusTeapot)
	c.Assert(w.Body.String(), qt.Equals, "short and stout")
}
