package repository

import (
	"context"
	"time"

	"cpa-distribution-system/internal/models"

	"gorm.io/gorm"
)

type DistributionRepository struct {
	db *gorm.DB
}

func NewDistributionRepository(db *gorm.DB) *DistributionRepository {
	return &DistributionRepository{db: db}
}

// GetByEventID 获取事件产生的全部分佣记录
func (r *DistributionRepository) GetByEventID(ctx context.Context, eventID string) ([]models.DistributionRecord, error) {
	var records []models.DistributionRecord
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("level ASC").
		Find(&records).Error
	return records, err
}

// GetByParticipantInRange 获取参与者在时间段内收到的分佣记录
// 统计重建时以此为权威数据源
func (r *DistributionRepository) GetByParticipantInRange(ctx context.Context, participantID string, start, end time.Time) ([]models.DistributionRecord, error) {
	var records []models.DistributionRecord
	err := r.db.WithContext(ctx).
		Where("participant_id = ? AND created_at >= ? AND created_at < ?", participantID, start, end).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}
