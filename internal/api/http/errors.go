package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind      domain.ErrorKind `json:"kind"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
}

// KindUnauthenticated is reported when the bearer token is missing or invalid.
// It never comes out of the engine.
const KindUnauthenticated domain.ErrorKind = "UNAUTHENTICATED"

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindBadRequest:
		return http.StatusBadRequest
	case domain.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case domain.KindGroupFull, domain.KindAlreadyMember, domain.KindGroupClosed, domain.KindAlreadyPaidOut:
		return http.StatusConflict
	case domain.KindBusy:
		return http.StatusServiceUnavailable
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		kind    = domain.KindOf(err)
		message = "internal error"
	)
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	status := statusFor(kind)
	if kind == domain.KindInternal {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	if kind == domain.KindBusy {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Kind:      kind,
		Message:   message,
		Retryable: kind == domain.KindBusy,
	}})
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	kind := KindUnauthenticated
	if status == http.StatusForbidden {
		kind = domain.KindUnauthorized
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.BadRequest("invalid request body: %v", err)
	}
	return nil
}
