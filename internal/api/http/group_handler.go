package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/service"
)

type GroupHandler struct {
	groupSvc     service.GroupService
	processorSvc service.ProcessorService
}

func NewGroupHandler(groupSvc service.GroupService, processorSvc service.ProcessorService) *GroupHandler {
	return &GroupHandler{groupSvc: groupSvc, processorSvc: processorSvc}
}

func RegisterGroupRoutes(r *mux.Router, h *GroupHandler) {
	r.HandleFunc("/groups", h.CreateGroup).Methods(http.MethodPost).Name("CreateGroup")
	r.HandleFunc("/groups", h.ListMyGroups).Methods(http.MethodGet).Name("ListMyGroups")
	// registered before /groups/{id} so "join" is never taken for a code
	r.HandleFunc("/groups/join", h.JoinGroup).Methods(http.MethodPost).Name("JoinGroup")
	r.HandleFunc("/groups/{id}", h.GetGroup).Methods(http.MethodGet).Name("GetGroup")
	r.HandleFunc("/groups/{id}/contributions", h.Contribute).Methods(http.MethodPost).Name("Contribute")
	r.HandleFunc("/groups/{id}/payout", h.WithdrawPayout).Methods(http.MethodPost).Name("WithdrawPayout")
	r.HandleFunc("/groups/{id}/advance", h.AdvanceGroupCycle).Methods(http.MethodPost).Name("AdvanceGroupCycle")
}

func groupCode(r *http.Request) domain.GroupCode {
	return domain.NormalizeGroupCode(mux.Vars(r)["id"])
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createGroupRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.groupSvc.CreateGroup(r.Context(), account, req.toSpec())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(g))
}

func (h *GroupHandler) ListMyGroups(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	groups, err := h.groupSvc.ListUserGroups(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": toGroupDTOs(groups)})
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.groupSvc.GetGroup(r.Context(), groupCode(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(g))
}

func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req joinGroupRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.groupSvc.JoinGroup(r.Context(), domain.NormalizeGroupCode(req.GroupCode), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(g))
}

func (h *GroupHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req contributeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.processorSvc.Contribute(r.Context(), groupCode(r), account,
		domain.Amount(req.Amount), req.Method.toDomain(), req.Reference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

func (h *GroupHandler) WithdrawPayout(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.processorSvc.WithdrawPayout(r.Context(), groupCode(r), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

func (h *GroupHandler) AdvanceGroupCycle(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.groupSvc.AdvanceGroupCycle(r.Context(), groupCode(r), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(g))
}
