package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"photobox/internal/boothtoken"
	"photobox/internal/identity"
	"photobox/internal/models"
)

// Principal is the caller behind a request: a dashboard session or a booth token.
type Principal struct {
	UserID    string
	Role      string
	SessionID string
	BoothID   string
	Session   identity.Session
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	setLoggedUser(ctx, p.UserID)
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type SessionLookup interface {
	Session(ctx context.Context, sessionID string) (identity.Session, error)
}

type TokenVerifier interface {
	Verify(token string) (boothtoken.Claims, error)
}

type Authorizer interface {
	Allow(role, route, method string) bool
}

// SessionAuth resolves the dashboard session and rejects requests without one.
func SessionAuth(sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := sessionIDFromRequest(r)
			if sessionID == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
				return
			}
			session, err := sessions.Session(r.Context(), sessionID)
			if err != nil {
				if errors.Is(err, identity.ErrSessionNotFound) {
					writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
					return
				}
				writeServiceError(w, r, err)
				return
			}
			role := session.Snapshot.Role
			if role == "" {
				role = models.RoleClient
			}
			ctx := withPrincipal(r.Context(), Principal{
				UserID:    session.UserID,
				Role:      role,
				SessionID: session.ID,
				Session:   session,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BoothAuth accepts booth JWTs issued by the token exchange.
func BoothAuth(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing booth token")
				return
			}
			claims, err := tokens.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid booth token")
				return
			}
			ctx := withPrincipal(r.Context(), Principal{
				UserID:  claims.ClientID,
				Role:    claims.Role,
				BoothID: claims.BoothID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize checks the principal's role against the RBAC policy.
func Authorize(authz Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
				return
			}
			if !authz.Allow(p.Role, r.URL.Path, r.Method) {
				writeError(w, http.StatusForbidden, "access_denied", "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
