package repository

import (
	"context"
	"errors"

	"cpa-distribution-system/internal/models"

	"gorm.io/gorm"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateWithDistributions 在同一事务内持久化事件及其分佣记录
// (event_id, participant_id)唯一键保证重试时不产生重复分佣
func (r *EventRepository) CreateWithDistributions(ctx context.Context, event *models.CommissionEvent, distributions []models.DistributionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return err
		}
		for i := range distributions {
			if err := tx.Create(&distributions[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *EventRepository) Create(ctx context.Context, event *models.CommissionEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetByEventID 按事件ID获取事件，不存在返回nil
func (r *EventRepository) GetByEventID(ctx context.Context, eventID string) (*models.CommissionEvent, error) {
	var event models.CommissionEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&event).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &event, err
}

func (r *EventRepository) GetBySubjectUser(ctx context.Context, subjectUserID string, limit int) ([]models.CommissionEvent, error) {
	var events []models.CommissionEvent
	query := r.db.WithContext(ctx).
		Where("subject_user_id = ?", subjectUserID).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&events).Error
	return events, err
}
