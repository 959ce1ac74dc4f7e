package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/service"
)

type WalletHandler struct {
	walletSvc service.WalletService
}

func NewWalletHandler(walletSvc service.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

func RegisterWalletRoutes(r *mux.Router, h *WalletHandler) {
	r.HandleFunc("/wallet/deposit", h.Deposit).Methods(http.MethodPost).Name("Deposit")
	r.HandleFunc("/wallet/withdraw", h.Withdraw).Methods(http.MethodPost).Name("Withdraw")
	r.HandleFunc("/settlements/confirm", h.ConfirmSettlement).Methods(http.MethodPost).Name("ConfirmSettlement")
}

// Deposit and Withdraw answer 202: the entry stays pending until the gateway
// confirms it.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req depositRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.walletSvc.Deposit(r.Context(), account, domain.Amount(req.Amount), req.Method.toDomain(), req.Reference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toReceiptDTO(receipt))
}

func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req withdrawRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.walletSvc.Withdraw(r.Context(), account, domain.Amount(req.Amount), req.Method.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toReceiptDTO(receipt))
}

func (h *WalletHandler) ConfirmSettlement(w http.ResponseWriter, r *http.Request) {
	var req confirmSettlementRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Reference == "" {
		writeError(w, r, domain.BadRequest("reference is required"))
		return
	}
	receipt, err := h.walletSvc.ConfirmSettlement(r.Context(), req.Reference, req.Outcome)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}
