package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cpa-distribution-system/internal/configcache"
	"cpa-distribution-system/internal/models"
	"cpa-distribution-system/internal/repository"
	"cpa-distribution-system/internal/scheduler"

	"gorm.io/gorm"
)

type BatchHandler struct {
	scheduler *scheduler.BatchScheduler
	pending   *repository.PendingRepository
}

func NewBatchHandler(batchScheduler *scheduler.BatchScheduler, pending *repository.PendingRepository) *BatchHandler {
	return &BatchHandler{scheduler: batchScheduler, pending: pending}
}

type TriggerBatchRequest struct {
	Limit int `json:"limit"`
}

func (h *BatchHandler) TriggerBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TriggerBatchRequest
	if r.Body != nil {
		// limit缺省时使用配置值
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.scheduler.TriggerManualBatch(r.Context(), req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "batch trigger failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type EnqueueSourceRequest struct {
	SourceID                 string  `json:"source_id" validate:"required"`
	SubjectUserID            string  `json:"subject_user_id" validate:"required"`
	OriginatingParticipantID string  `json:"originating_participant_id" validate:"required"`
	DepositAmount            float64 `json:"deposit_amount" validate:"gte=0"`
	BetCount                 int     `json:"bet_count" validate:"gte=0"`
	TotalBetAmount           float64 `json:"total_bet_amount" validate:"gte=0"`
	DaysActive               int     `json:"days_active" validate:"gte=0"`
}

// EnqueueSource 入队一条待处理源记录，由下一次批处理拾取
func (h *BatchHandler) EnqueueSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req EnqueueSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	pending := &models.PendingCommission{
		SourceID:                 req.SourceID,
		SubjectUserID:            req.SubjectUserID,
		OriginatingParticipantID: req.OriginatingParticipantID,
		DepositAmount:            req.DepositAmount,
		BetCount:                 req.BetCount,
		TotalBetAmount:           req.TotalBetAmount,
		DaysActive:               req.DaysActive,
		Status:                   models.PendingStatusPending,
	}
	if err := h.pending.Create(r.Context(), pending); err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			writeError(w, http.StatusConflict, "source already enqueued: "+req.SourceID)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue source: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, pending)
}

// BatchStatus 按状态统计源记录数量
func (h *BatchHandler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	counts := map[string]int64{}
	for _, status := range []models.PendingStatus{
		models.PendingStatusPending,
		models.PendingStatusProcessed,
		models.PendingStatusFailed,
	} {
		count, err := h.pending.CountByStatus(r.Context(), status)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to count sources: "+err.Error())
			return
		}
		counts[string(status)] = count
	}

	writeJSON(w, http.StatusOK, counts)
}

type AuditHandler struct {
	audits *repository.AuditRepository
}

func NewAuditHandler(audits *repository.AuditRepository) *AuditHandler {
	return &AuditHandler{audits: audits}
}

// GetRecent 返回最近的审计记录，供运维排查
func (h *AuditHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.audits.GetRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load audit logs: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

type HealthHandler struct {
	db       *gorm.DB
	provider *configcache.Provider
}

func NewHealthHandler(db *gorm.DB, provider *configcache.Provider) *HealthHandler {
	return &HealthHandler{db: db, provider: provider}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{
		"status":          "ok",
		"database":        "ok",
		"config_provider": "ok",
	}
	code := http.StatusOK

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		status["status"] = "unhealthy"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}

	// 配置中心不可用时缓存降级运行，不影响整体健康
	if h.provider != nil {
		if err := h.provider.Health(ctx); err != nil {
			status["config_provider"] = "degraded"
		}
	}

	writeJSON(w, code, status)
}
