package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"aicoo/internal/engine"
)

type AuthConfig struct {
	JWTSecret   string
	CookieName  string
	AllowCookie bool
}

// Principal is the authenticated caller. Every resource is scoped by Email.
type Principal struct {
	Email  string
	Source string
}

type principalKey struct{}

// withPrincipal stores p with its email lower-cased; ownership and
// collaborator checks compare emails exactly.
func withPrincipal(ctx context.Context, p Principal) context.Context {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func emailFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.Email != "" {
		return p.Email, nil
	}
	return "", notLoggedIn()
}

func notLoggedIn() huma.StatusError {
	return newAPIError(http.StatusUnauthorized, "unauthorized", "Not logged in", nil)
}

func invalidCredentials() huma.StatusError {
	return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
}

// SignToken mints an HS256 token whose subject is email.
func SignToken(secret, email string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  email,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateJWT(token, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{Email: claims.Subject, Source: "jwt"}, nil
}

func authenticateAPIKey(ctx context.Context, e engine.Engine, key string) (Principal, error) {
	if strings.TrimSpace(key) == "" {
		return Principal{}, errors.New("api key required")
	}
	owner, err := e.ResolveAPIKey(ctx, key)
	if err != nil {
		return Principal{}, err
	}
	return Principal{Email: owner, Source: "api_key"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware accepts, in order, a bearer JWT, an X-Api-Key header and,
// when enabled, the email cookie. Paths outside basePath and the health check are public.
func newAuthMiddleware(basePath string, cfg AuthConfig, e engine.Engine) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath || req.URL.Path == path.Join(basePath, "openapi.json") {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, invalidCredentials())
					return
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					slog.DebugContext(req.Context(), "jwt rejected", "err", err)
					respondStatusError(w, invalidCredentials())
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if apiKeyHeader != "" {
				principal, err := authenticateAPIKey(req.Context(), e, apiKeyHeader)
				if err != nil {
					if !errors.Is(err, engine.ErrUnknownAPIKey) {
						slog.ErrorContext(req.Context(), "api key lookup failed", "err", err)
					}
					respondStatusError(w, invalidCredentials())
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if cfg.AllowCookie && cfg.CookieName != "" {
				if c, err := req.Cookie(cfg.CookieName); err == nil && strings.TrimSpace(c.Value) != "" {
					principal := Principal{Email: strings.TrimSpace(c.Value), Source: "cookie"}
					next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
					return
				}
			}

			respondStatusError(w, notLoggedIn())
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
