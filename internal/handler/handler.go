package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cpa-distribution-system/internal/service"
	"cpa-distribution-system/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// errorStatus 将业务错误码映射为HTTP状态码
func errorStatus(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrInvalidInput:
		return http.StatusBadRequest
	case errors.ErrInvalidEligibility:
		return http.StatusUnprocessableEntity
	case errors.ErrHierarchyCycle:
		return http.StatusConflict
	case errors.ErrHierarchy:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type CommissionHandler struct {
	orchestrator *service.DistributionOrchestrator
}

func NewCommissionHandler(orchestrator *service.DistributionOrchestrator) *CommissionHandler {
	return &CommissionHandler{orchestrator: orchestrator}
}

type SubmitRequest struct {
	SubjectUserID            string  `json:"subject_user_id" validate:"required"`
	OriginatingParticipantID string  `json:"originating_participant_id" validate:"required"`
	DepositAmount            float64 `json:"deposit_amount" validate:"gte=0"`
	BetCount                 int     `json:"bet_count" validate:"gte=0"`
	TotalBetAmount           float64 `json:"total_bet_amount" validate:"gte=0"`
	DaysActive               int     `json:"days_active" validate:"gte=0"`
}

func (h *CommissionHandler) SubmitCommission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	result, err := h.orchestrator.SubmitCommissionEvent(r.Context(), service.SubmitInput{
		SubjectUserID:            req.SubjectUserID,
		OriginatingParticipantID: req.OriginatingParticipantID,
		DepositAmount:            req.DepositAmount,
		BetCount:                 req.BetCount,
		TotalBetAmount:           req.TotalBetAmount,
		DaysActive:               req.DaysActive,
	})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type HierarchyHandler struct {
	hierarchySvc *service.HierarchyService
}

func NewHierarchyHandler(hierarchySvc *service.HierarchyService) *HierarchyHandler {
	return &HierarchyHandler{hierarchySvc: hierarchySvc}
}

func maxLevelsParam(r *http.Request) int {
	maxLevels, _ := strconv.Atoi(r.URL.Query().Get("max_levels"))
	if maxLevels < 0 {
		maxLevels = 0
	}
	return maxLevels
}

func (h *HierarchyHandler) GetUpline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 4 || pathParts[3] == "" {
		writeError(w, http.StatusBadRequest, "invalid path format, expected /api/hierarchy/upline/{participant_id}")
		return
	}
	participantID := pathParts[3]

	upline, err := h.hierarchySvc.ResolveUpline(r.Context(), participantID, maxLevelsParam(r))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"participant_id": participantID,
		"upline":         upline,
	})
}

func (h *HierarchyHandler) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		writeError(w, http.StatusBadRequest, "invalid path format, expected /api/hierarchy/{participant_id}")
		return
	}
	participantID := pathParts[2]

	descendants, err := h.hierarchySvc.ResolveDescendants(r.Context(), participantID, maxLevelsParam(r))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"participant_id": participantID,
		"descendants":    descendants,
	})
}

type UpsertParticipantRequest struct {
	ParticipantID string  `json:"participant_id" validate:"required"`
	ParentID      *string `json:"parent_id"`
}

func (h *HierarchyHandler) UpsertParticipant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req UpsertParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	participant, err := h.hierarchySvc.UpsertParticipant(r.Context(), req.ParticipantID, req.ParentID)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, participant)
}

type DeactivateParticipantRequest struct {
	ParticipantID string `json:"participant_id" validate:"required"`
}

func (h *HierarchyHandler) DeactivateParticipant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req DeactivateParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	if err := h.hierarchySvc.DeactivateParticipant(r.Context(), req.ParticipantID); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

type StatisticsHandler struct {
	statsSvc *service.StatisticsService
}

func NewStatisticsHandler(statsSvc *service.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{statsSvc: statsSvc}
}

func parsePeriod(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func (h *StatisticsHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		writeError(w, http.StatusBadRequest, "participant_id is required")
		return
	}

	periodStart, err := parsePeriod(r.URL.Query().Get("period_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period_start: "+err.Error())
		return
	}
	periodEnd, err := parsePeriod(r.URL.Query().Get("period_end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period_end: "+err.Error())
		return
	}

	summary, err := h.statsSvc.GetStatistics(r.Context(), participantID, periodStart, periodEnd)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

type RebuildStatisticsRequest struct {
	ParticipantID string `json:"participant_id" validate:"required"`
	From          string `json:"from" validate:"required"`
}

func (h *StatisticsHandler) RebuildStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req RebuildStatisticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	from, err := parsePeriod(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}

	if err := h.statsSvc.RebuildStatistics(r.Context(), req.ParticipantID, from); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}
