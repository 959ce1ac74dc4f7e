package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/service"
)

type NotificationHandler struct {
	notificationSvc service.NotificationService
}

func NewNotificationHandler(notificationSvc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationSvc: notificationSvc}
}

func RegisterNotificationRoutes(r *mux.Router, h *NotificationHandler) {
	r.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet).Name("ListNotifications")
	r.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods(http.MethodPost).Name("MarkNotificationRead")
}

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, total, err := h.notificationSvc.List(r.Context(), account, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationListDTO(list, total))
}

func (h *NotificationHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	account, err := callerFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.notificationSvc.MarkAsRead(r.Context(), account, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domain.BadRequest("invalid %s %q", name, v)
	}
	return n, nil
}
