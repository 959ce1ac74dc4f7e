package http

import (
	"context"
	"net/http"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/security"
)

type claimsKey struct{}

func withClaims(ctx context.Context, claims *security.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the validated token claims of the request.
func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*security.Claims)
	return c, ok
}

// callerFromRequest extracts the caller's principal placed by the auth middleware.
func callerFromRequest(r *http.Request) (domain.AccountID, error) {
	c, ok := ClaimsFromContext(r.Context())
	if !ok || c.Subject == "" {
		return "", &domain.Error{Kind: KindUnauthenticated, Message: "caller is not authenticated"}
	}
	return c.AccountID(), nil
}
