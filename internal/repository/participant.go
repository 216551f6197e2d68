package repository

import (
	"context"
	"errors"

	"cpa-distribution-system/internal/models"

	"gorm.io/gorm"
)

type ParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// GetByParticipantID 按参与者ID获取节点，不存在返回nil
func (r *ParticipantRepository) GetByParticipantID(ctx context.Context, participantID string) (*models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).
		Where("participant_id = ?", participantID).
		First(&participant).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &participant, err
}

// GetByParticipantIDs 批量获取节点，用于上线链的激活状态回查
func (r *ParticipantRepository) GetByParticipantIDs(ctx context.Context, participantIDs []string) ([]models.Participant, error) {
	var participants []models.Participant
	if len(participantIDs) == 0 {
		return participants, nil
	}
	err := r.db.WithContext(ctx).
		Where("participant_id IN ?", participantIDs).
		Find(&participants).Error
	return participants, err
}

func (r *ParticipantRepository) Create(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

// ApplyPathUpdates 在单个事务内应用一批层级/路径重算结果
// 移动子树要么整体一致要么整体失败，读取方不会看到中间状态
func (r *ParticipantRepository) ApplyPathUpdates(ctx context.Context, updates []models.ParticipantPathUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, update := range updates {
			err := tx.Model(&models.Participant{}).
				Where("participant_id = ?", update.ParticipantID).
				Updates(map[string]interface{}{
					"parent_id": update.ParentID,
					"level":     update.Level,
					"path":      update.Path,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDescendantsOf 获取路径中包含指定节点的所有后代
// 按路径长度升序返回，保证级联重算时父节点先于子节点
func (r *ParticipantRepository) GetDescendantsOf(ctx context.Context, participantID string) ([]models.Participant, error) {
	var descendants []models.Participant
	err := r.db.WithContext(ctx).
		Where("JSON_CONTAINS(path, JSON_QUOTE(?)) AND participant_id != ?", participantID, participantID).
		Order("JSON_LENGTH(path) ASC").
		Find(&descendants).Error
	return descendants, err
}

// SetActive 激活或停用节点，停用节点保留在树中供审计
func (r *ParticipantRepository) SetActive(ctx context.Context, participantID string, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("participant_id = ?", participantID).
		Update("active", active).Error
}
