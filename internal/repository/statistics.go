package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"cpa-distribution-system/internal/models"

	"gorm.io/gorm"
)

type StatisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// ApplyDelta 原子性累加指定(参与者,周期,层级)的统计增量
// 使用INSERT ... ON DUPLICATE KEY UPDATE实现upsert，避免两次往返的读改写
func (r *StatisticsRepository) ApplyDelta(ctx context.Context, participantID string, periodStart, periodEnd time.Time, level int, amount float64) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO statistics_snapshots (participant_id, period_start, period_end, level, total_count, total_amount, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, NOW())
		ON DUPLICATE KEY UPDATE
			total_count = total_count + 1,
			total_amount = total_amount + VALUES(total_amount),
			updated_at = NOW()
	`, participantID, periodStart, periodEnd, level, amount).Error
}

// GenerateApplicationHash 生成统计应用的去重哈希
// 同一事件加同一批参与者重复应用时哈希相同
func (r *StatisticsRepository) GenerateApplicationHash(eventID string, participantIDs []string) string {
	sorted := append([]string(nil), participantIDs...)
	sort.Strings(sorted)
	data := fmt.Sprintf("%s:%s", eventID, strings.Join(sorted, ","))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func (r *StatisticsRepository) ApplicationExists(ctx context.Context, hash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StatisticsApplication{}).
		Where("application_hash = ?", hash).
		Count(&count).Error
	return count > 0, err
}

func (r *StatisticsRepository) RecordApplication(ctx context.Context, application *models.StatisticsApplication) error {
	return r.db.WithContext(ctx).Create(application).Error
}

// GetByParticipantInRange 获取参与者在周期范围内的各层级统计行
func (r *StatisticsRepository) GetByParticipantInRange(ctx context.Context, participantID string, periodStart, periodEnd time.Time) ([]models.StatisticsSnapshot, error) {
	var snapshots []models.StatisticsSnapshot
	err := r.db.WithContext(ctx).
		Where("participant_id = ? AND period_start >= ? AND period_end <= ?", participantID, periodStart, periodEnd).
		Order("period_start ASC, level ASC").
		Find(&snapshots).Error
	return snapshots, err
}

// ResetForRebuild 清除参与者的统计行和相关去重记录
// 仅供统计重建使用，清除后由调用方从权威分佣记录重新累加
func (r *StatisticsRepository) ResetForRebuild(ctx context.Context, participantID string, from time.Time, eventIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("participant_id = ? AND period_start >= ?", participantID, from).
			Delete(&models.StatisticsSnapshot{}).Error; err != nil {
			return err
		}
		if len(eventIDs) > 0 {
			if err := tx.Where("event_id IN ?", eventIDs).
				Delete(&models.StatisticsApplication{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
