package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/service"
)

type UserHandler struct {
	userSvc  service.UserService
	querySvc service.QueryService
}

func NewUserHandler(userSvc service.UserService, querySvc service.QueryService) *UserHandler {
	return &UserHandler{userSvc: userSvc, querySvc: querySvc}
}

func RegisterUserRoutes(r *mux.Router, h *UserHandler) {
	r.HandleFunc("/users", h.RegisterUser).Methods(http.MethodPost).Name("RegisterUser")
	r.HandleFunc("/users/me", h.GetUser).Methods(http.MethodGet).Name("GetUser")
	r.HandleFunc("/users/me/transactions", h.GetUserTransactions).Methods(http.MethodGet).Name("GetUserTransactions")
	r.HandleFunc("/dashboard", h.GetDashboard).Methods(http.MethodGet).Name("GetDashboard")
}

// RegisterUser takes the wallet kind from the body, falling back to the
// token's wallet_kind claim.
func (h *UserHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req registerUserRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.WalletKind == "" {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			req.WalletKind = claims.WalletKind
		}
	}
	user, err := h.userSvc.RegisterUser(r.Context(), account, req.WalletKind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.userSvc.GetUser(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

func (h *UserHandler) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := parseHistoryFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.userSvc.GetUserTransactions(r.Context(), account, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyDTO{
		Transactions: toTransactionDTOs(page.Transactions),
		NextCursor:   encodeCursor(page.Next),
	})
}

func parseHistoryFilter(r *http.Request) (domain.HistoryFilter, error) {
	q := r.URL.Query()
	var f domain.HistoryFilter
	if v := q.Get("kind"); v != "" {
		kind := domain.TransactionKind(v)
		f.Kind = &kind
	}
	if v := q.Get("status"); v != "" {
		status := domain.TransactionStatus(v)
		f.Status = &status
	}
	if v := q.Get("group"); v != "" {
		code := domain.NormalizeGroupCode(v)
		f.GroupID = &code
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, domain.BadRequest("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := q.Get("cursor"); v != "" {
		c, err := decodeCursor(v)
		if err != nil {
			return f, err
		}
		f.After = c
	}
	return f, nil
}

func (h *UserHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.querySvc.GetDashboard(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(d))
}
