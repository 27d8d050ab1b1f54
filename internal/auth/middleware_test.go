package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/auth"
	"github.com/isdelr/blog-be/internal/models"
)

type fakeUsers map[string]models.User

func (f fakeUsers) GetUserByID(_ context.Context, id string) (models.User, error) {
	u, ok := f[id]
	if !ok {
		return models.User{}, apperror.NotFound("User not found")
	}
	return u, nil
}

// principalEcho writes the principal it sees, or "anonymous".
var principalEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		w.Write([]byte("anonymous"))
		return
	}
	w.Write([]byte(p.UserID + ":" + string(p.Role)))
})

func setup(c *qt.C) (*auth.Middleware, *auth.TokenManager, fakeUsers) {
	c.Helper()
	users := fakeUsers{
		"u1": {ID: "u1", Role: models.RoleUser},
		"a1": {ID: "a1", Role: models.RoleAdmin},
	}
	tokens := auth.NewTokenManager("secret", time.Hour)
	return auth.NewMiddleware(tokens, users), tokens, users
}

func token(c *qt.C, tokens *auth.TokenManager, id string) string {
	c.Helper()
	s, err := tokens.GenerateJWT(id)
	c.Assert(err, qt.IsNil)
	return s
}

func decode(c *qt.C, w *httptest.ResponseRecorder) map[string]any {
	c.Helper()
	var body map[string]any
	c.Assert(json.NewDecoder(w.Body).Decode(&body), qt.IsNil)
	return body
}

func TestRequireAuth(t *testing.T) {
	c := qt.New(t)
	mw, tokens, _ := setup(c)
	h := mw.RequireAuth(principalEcho)

	c.Run("no token", func(c *qt.C) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		c.Assert(w.Code, qt.Equals, http.StatusUnauthorized)
		body := decode(c, w)
		c.Assert(body["success"], qt.Equals, false)
		c.Assert(body["message"], qt.Not(qt.Equals), "")
	})

	c.Run("bad token", func(c *qt.C) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		c.Assert(w.Code, qt.Equals, http.StatusUnauthorized)
	})

	c.Run("unknown subject", func(c *qt.C) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token(c, tokens, "ghost"))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		c.Assert(w.Code, qt.Equals, http.StatusUnauthorized)
	})

	c.Run("bearer header", func(c *qt.C) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+token(c, tokens, "u1"))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		c.Assert(w.Code, qt.Equals, http.StatusOK)
		c.Assert(w.Body.String(), qt.Equals, "u1:user")
	})

	c.Run("cookie", func(c *qt.C) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: auth.TokenCookie, Value: token(c, tokens, "a1")})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		c.Assert(w.Body.String(), qt.Equals, "a1:admin")
	})
}

func TestRoleIsReadFreshEachRequest(t *testing.T) {
	c := qt.New(t)
	mw, tokens, users := setup(c)
	h := mw.RequireAuth(principalEcho)
	tok := token(c, tokens, "u1")

	do := func() string {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Body.String()
	}

	c.Assert(do(), qt.Equals, "u1:user")
	users["u1"] = models.User{ID: "u1", Role: models.RoleEditor}
	c.Assert(do(), qt.Equals, "u1:editor")
}

func TestOptionalAuth(t *testing.T) {
	c := qt.New(t)
	mw, tokens, _ := setup(c)
	h := mw.OptionalAuth(principalEcho)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"anonymous", "", "anonymous"},
		{"invalid token proceeds anonymously", "Bearer nope", "anonymous"},
		{"valid token", "Bearer " + token(c, tokens, "u1"), "u1:user"},
	}

	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			c.Assert(w.Code, qt.Equals, http.StatusOK)
			c.Assert(w.Body.String(), qt.Equals, tt.want)
		})
	}
}

func TestRequireAnyRole(t *testing.T) {
	c := qt.New(t)
	mw, tokens, _ := setup(c)
	h := mw.RequireAuth(auth.RequireAnyRole(models.RoleAdmin)(principalEcho))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token(c, tokens, "u1"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	c.Assert(w.Code, qt.Equals, http.StatusForbidden)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token(c, tokens, "a1"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	// Without RequireAuth in front there is no principal at all.
	w = httptest.NewRecorder()
	auth.RequireAnyRole(models.RoleAdmin)(principalEcho).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	c.Assert(w.Code, qt.Equals, http.StatusUnauthorized)
}
