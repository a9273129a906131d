// Package middleware provides HTTP middleware for the command surface.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"
	"github.com/Coffee-Network/coffee_ledger/internal/principal"
	"github.com/Coffee-Network/coffee_ledger/pkg/logger"
)

// Claims carries the caller principal in a signed token. The principal is
// never trusted from the request body; it only enters through here.
type Claims struct {
	Principal string `json:"principal"`
	jwt.RegisteredClaims
}

type contextKey string

const callerKey contextKey = "caller"

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (principal.Principal, bool) {
	p, ok := ctx.Value(callerKey).(principal.Principal)
	return p, ok
}

// AuthMiddleware validates bearer tokens and resolves the caller principal.
type AuthMiddleware struct {
	secret []byte
	log    *logger.Logger
}

// NewAuthMiddleware creates an HMAC-validating auth middleware.
func NewAuthMiddleware(secret []byte, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AuthMiddleware{secret: secret, log: log}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, apperrors.InvalidToken(nil).WithDetails("reason", "missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondError(w, apperrors.InvalidToken(nil).WithDetails("reason", "expected Bearer token"))
			return
		}

		caller, err := m.validateToken(parts[1])
		if err != nil {
			m.log.WithError(err).Warn("token validation failed")
			respondError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (principal.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", apperrors.InvalidToken(err)
	}
	if !token.Valid {
		return "", apperrors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", apperrors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}

	caller, err := principal.FromText(claims.Principal)
	if err != nil {
		return "", apperrors.InvalidToken(err)
	}
	return caller, nil
}

// IssueToken signs a token for the given principal. Used by deployment
// tooling and tests.
func IssueToken(secret []byte, p principal.Principal) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Principal: p.String()})
	return token.SignedString(secret)
}

func respondError(w http.ResponseWriter, err error) {
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = apperrors.Internal("authentication failed", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]any{"error": serviceErr})
}
