package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"cinestream/internal/config"
	"cinestream/internal/httpx"
)

const RoleAdmin = "ADMIN"

var ErrInvalidToken = errors.New("invalid token")

type Principal struct {
	Email string
	Role  string
}

// Authenticator validates a bearer credential.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// StaticTokens authenticates against a fixed token list from config.
type StaticTokens struct {
	tokens []config.TokenConfig
}

var _ Authenticator = (*StaticTokens)(nil)

func NewStaticTokens(tokens []config.TokenConfig) *StaticTokens {
	return &StaticTokens{tokens: tokens}
}

func (s *StaticTokens) Authenticate(_ context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	for _, t := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(t.Token), []byte(token)) == 1 {
			role := t.Role
			if role == "" {
				role = "USER"
			}
			return &Principal{Email: t.Email, Role: strings.ToUpper(role)}, nil
		}
	}
	return nil, ErrInvalidToken
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// Media elements cannot set an Authorization header, so these paths also
// accept the credential as a ?token= query parameter.
var queryTokenPaths = []string{
	"/api/files/video/",
	"/api/files/image/",
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	for _, prefix := range queryTokenPaths {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return r.URL.Query().Get("token")
		}
	}
	return ""
}

// Middleware attaches the authenticated principal, if any, to the request
// context. It never rejects a request; see RequireAuth and RequireRole.
func Middleware(a Authenticator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := a.Authenticate(r.Context(), token)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if p.Role != role {
				httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
