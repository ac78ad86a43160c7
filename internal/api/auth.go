package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/rbrinkke/userprofile-api/internal/errors"
	"github.com/rbrinkke/userprofile-api/internal/logging"
)

// RoleAdmin is the token role allowed on /admin routes
const RoleAdmin = "admin"

// Principal is the authenticated caller of a user-facing request
type Principal struct {
	UserID string
	Role   string
}

// IsAdmin reports the admin role
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Claims are the bearer token claims issued by the auth service. The user
// id is the subject, or user_id for older tokens.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates bearer tokens signed with a shared secret
type TokenVerifier struct {
	secret []byte
	method string
}

// NewTokenVerifier creates a verifier for tokens signed with algorithm (HS256 by default)
func NewTokenVerifier(secret, algorithm string) *TokenVerifier {
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	return &TokenVerifier{secret: []byte(secret), method: algorithm}
}

// Verify parses and validates token and returns its principal
func (v *TokenVerifier) Verify(token string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{v.method}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return nil, fmt.Errorf("token carries no user id")
	}
	return &Principal{UserID: userID, Role: claims.Role}, nil
}

// Sign issues a token with claims. Used by tests and local tooling.
func (v *TokenVerifier) Sign(claims Claims) (string, error) {
	method := jwt.GetSigningMethod(v.method)
	if method == nil {
		return "", fmt.Errorf("unsupported signing method %s", v.method)
	}
	return jwt.NewWithClaims(method, claims).SignedString(v.secret)
}

type contextKey string

const principalKey contextKey = "principal"

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// principalFrom returns the authenticated caller, if any
func principalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// AuthMiddleware requires a valid bearer token
func AuthMiddleware(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respondServiceError(w, r, apperrors.NewUnauthorizedError("missing bearer token"))
				return
			}
			p, err := verifier.Verify(token)
			if err != nil {
				logging.FromContext(r.Context()).WithError(err).Debug("rejected bearer token")
				respondServiceError(w, r, apperrors.NewUnauthorizedError("invalid bearer token"))
				return
			}

			ctx := withPrincipal(r.Context(), p)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithField("actor_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin lets only admin principals through. It must run after AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r.Context())
		if !ok || !p.IsAdmin() {
			respondServiceError(w, r, apperrors.NewForbiddenError("admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireServiceKey accepts requests whose X-API-Key matches one of keys
func RequireServiceKey(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-API-Key")
			if presented == "" {
				respondServiceError(w, r, apperrors.NewUnauthorizedError("missing API key"))
				return
			}
			for _, k := range keys {
				if subtle.ConstantTimeCompare([]byte(presented), []byte(k)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondServiceError(w, r, apperrors.NewForbiddenError("API key not allowed for this endpoint"))
		})
	}
}
