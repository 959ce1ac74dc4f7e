package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/metrics"
	"susu-ledger-backend/internal/security"
	"susu-ledger-backend/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDependencies struct {
	Services *service.Services
	Tokens   security.TokenManager
	Health   Pinger
	Metrics  *metrics.Metrics
}

// NewRouter wires every route under /api/v1 plus the public operational
// endpoints. Each route carries a name that selects its security level.
func NewRouter(deps RouterDependencies) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Kind: domain.KindNotFound, Message: "no such route"}})
	})

	r.HandleFunc("/healthz", healthz(deps.Health)).Methods(http.MethodGet).Name("Healthz")
	r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet).Name("Metrics")

	api := r.PathPrefix("/api/v1").Subrouter()
	RegisterUserRoutes(api, NewUserHandler(deps.Services.Users, deps.Services.Query))
	RegisterGroupRoutes(api, NewGroupHandler(deps.Services.Groups, deps.Services.Processor))
	RegisterWalletRoutes(api, NewWalletHandler(deps.Services.Wallet))
	RegisterNotificationRoutes(api, NewNotificationHandler(deps.Services.Notifications))

	r.Use(NewAuthMiddleware(deps.Tokens).Handler)
	return recoverPanics(logRequests(r))
}

func healthz(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		payload := map[string]any{"status": "ok"}
		if p != nil {
			if err := p.Ping(ctx); err != nil {
				logger.Error("Health probe failed", "error", err)
				status = http.StatusServiceUnavailable
				payload["status"] = "degraded"
			}
		}
		writeJSON(w, status, payload)
	}
}
