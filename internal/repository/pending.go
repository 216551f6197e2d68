package repository

import (
	"context"
	"time"

	"cpa-distribution-system/internal/models"

	"gorm.io/gorm"
)

type PendingRepository struct {
	db *gorm.DB
}

func NewPendingRepository(db *gorm.DB) *PendingRepository {
	return &PendingRepository{db: db}
}

func (r *PendingRepository) Create(ctx context.Context, pending *models.PendingCommission) error {
	return r.db.WithContext(ctx).Create(pending).Error
}

// ListPending 按创建顺序取出待处理源记录
func (r *PendingRepository) ListPending(ctx context.Context, limit int) ([]models.PendingCommission, error) {
	var pending []models.PendingCommission
	if limit <= 0 {
		limit = 100
	}
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PendingStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&pending).Error
	return pending, err
}

// MarkProcessed 仅在提交成功后调用，之后该记录不再被批处理拾取
func (r *PendingRepository) MarkProcessed(ctx context.Context, sourceID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.PendingCommission{}).
		Where("source_id = ?", sourceID).
		Updates(map[string]interface{}{
			"status":       models.PendingStatusProcessed,
			"processed_at": &now,
			"last_error":   "",
		}).Error
}

func (r *PendingRepository) MarkFailed(ctx context.Context, sourceID string, reason string) error {
	if len(reason) > 512 {
		reason = reason[:512]
	}
	return r.db.WithContext(ctx).
		Model(&models.PendingCommission{}).
		Where("source_id = ?", sourceID).
		Updates(map[string]interface{}{
			"status":     models.PendingStatusFailed,
			"last_error": reason,
		}).Error
}

func (r *PendingRepository) CountByStatus(ctx context.Context, status models.PendingStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PendingCommission{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
