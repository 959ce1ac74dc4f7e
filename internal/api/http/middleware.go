package http

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/security"
)

type AuthMiddleware struct {
	tokenManager security.TokenManager
}

func NewAuthMiddleware(tm security.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm}
}

// Handler authenticates requests by the security level of the matched route.
func (a *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := ""
		if cur := mux.CurrentRoute(r); cur != nil {
			route = cur.GetName()
		}
		level := config.GetSecurityLevel(route)

		// Public endpoint - skip auth
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractToken(r)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "authorization token is not provided")
			return
		}

		claims, err := a.tokenManager.ValidateToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, security.ErrExpiredToken) {
				msg = "token has expired"
			}
			writeAuthError(w, http.StatusUnauthorized, msg)
			return
		}

		if !levelAllows(level, claims) {
			logger.Warn("Token type rejected", "route", route, "tokenType", claims.Type)
			writeAuthError(w, http.StatusForbidden, security.ErrWrongTokenType.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func extractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	// Remove Bearer prefix if present
	if len(header) > 7 && strings.ToUpper(header[0:7]) == "BEARER " {
		header = header[7:]
	}
	header = strings.TrimSpace(header)
	return header, header != ""
}

func levelAllows(level config.SecurityLevel, claims *security.Claims) bool {
	switch level {
	case config.SecurityPublic:
		return true
	case config.SecurityAccess:
		return claims.Type == security.TokenTypeAccess
	case config.SecuritySettlement:
		return claims.Type == security.TokenTypeSettlement
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests logs one line per request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic in handler", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
					Kind:    domain.KindInternal,
					Message: "internal error",
				}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
