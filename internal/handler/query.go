package handler

import (
	"net/http"
	"strconv"
	"strings"

	"cpa-distribution-system/internal/repository"
)

// CommissionQueryHandler 分佣事件的只读查询
type CommissionQueryHandler struct {
	events        *repository.EventRepository
	distributions *repository.DistributionRepository
	audits        *repository.AuditRepository
}

func NewCommissionQueryHandler(events *repository.EventRepository, distributions *repository.DistributionRepository, audits *repository.AuditRepository) *CommissionQueryHandler {
	return &CommissionQueryHandler{
		events:        events,
		distributions: distributions,
		audits:        audits,
	}
}

// GetCommission 返回事件及其分佣记录和审计轨迹
// 路径不带事件ID时按subject_user_id列出该用户的事件
func (h *CommissionQueryHandler) GetCommission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		h.listBySubjectUser(w, r)
		return
	}
	eventID := pathParts[2]

	event, err := h.events.GetByEventID(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load event: "+err.Error())
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found: "+eventID)
		return
	}

	distributions, err := h.distributions.GetByEventID(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load distributions: "+err.Error())
		return
	}
	trail, err := h.audits.GetByEventID(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load audit trail: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event":         event,
		"distributions": distributions,
		"audit_trail":   trail,
	})
}

func (h *CommissionQueryHandler) listBySubjectUser(w http.ResponseWriter, r *http.Request) {
	subjectUserID := r.URL.Query().Get("subject_user_id")
	if subjectUserID == "" {
		writeError(w, http.StatusBadRequest, "expected /api/commission/{event_id} or ?subject_user_id=")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.events.GetBySubjectUser(r.Context(), subjectUserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load events: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subject_user_id": subjectUserID,
		"events":          events,
	})
}
