package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/api/respond"
	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/models"
)

// TokenCookie is the cookie that carries the session token for browser clients.
const TokenCookie = "token"

// Principal is the authorization context of one request: the verified
// subject and the role freshly read from the store.
type Principal struct {
	UserID string
	Role   models.Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

type contextKey string

const principalKey = contextKey("principal")

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal attached by RequireAuth or OptionalAuth.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// UserLookup resolves a token subject to a stored user.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// Middleware gates routes by authentication and role.
type Middleware struct {
	tokens *TokenManager
	users  UserLookup
}

// NewMiddleware creates the authorization middleware.
func NewMiddleware(tokens *TokenManager, users UserLookup) *Middleware {
	return &Middleware{tokens: tokens, users: users}
}

// RequireAuth rejects requests without a valid token with 401.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := tokenFromRequest(r)
		if tokenStr == "" {
			respond.Error(w, r, apperror.Unauthorized("Not authorized, no token"))
			return
		}

		p, err := m.authenticate(r.Context(), tokenStr)
		if err != nil {
			if apperror.KindOf(err) == apperror.KindUnauthorized {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected request with invalid token")
			}
			respond.Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// OptionalAuth attaches a principal when a valid token is present and
// otherwise lets the request through anonymously.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenStr := tokenFromRequest(r); tokenStr != "" {
			if p, err := m.authenticate(r.Context(), tokenStr); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnyRole rejects authenticated requests whose role is not in roles
// with 403. It must run after RequireAuth.
func RequireAnyRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				respond.Error(w, r, apperror.Unauthorized("Not authorized"))
				return
			}
			if !slices.Contains(roles, p.Role) {
				respond.Error(w, r, apperror.Forbidden("User role "+string(p.Role)+" is not authorized to access this route"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) authenticate(ctx context.Context, tokenStr string) (Principal, error) {
	claims, err := m.tokens.ValidateJWT(tokenStr)
	if err != nil {
		return Principal{}, err
	}

	user, err := m.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return Principal{}, apperror.Unauthorized("Not authorized, user not found")
		}
		return Principal{}, err
	}
	return Principal{UserID: user.ID, Role: user.Role}, nil
}

// tokenFromRequest reads the Authorization header first, then falls back to the cookie.
func tokenFromRequest(r *http.Request) string {
	if authHeader := strings.TrimSpace(r.Header.Get("Authorization")); authHeader != "" {
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
			return strings.TrimSpace(authHeader[7:])
		}
		return ""
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}
