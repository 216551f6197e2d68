package service

import (
	"cpa-distribution-system/internal/configcache"
	"cpa-distribution-system/internal/models"
	"cpa-distribution-system/pkg/logger"

	"github.com/google/uuid"
)

type DistributionCalculator struct{}

func NewDistributionCalculator() *DistributionCalculator {
	return &DistributionCalculator{}
}

// Calculate 将上线链映射为逐级分佣记录
// 派彩金额为层级索引的固定值，与事件原始金额无关
// 表中缺失、非正值或超出最大层级的层级静默跳过
// 低于最小派彩金额的记录直接丢弃，不向上取整也不延期
func (c *DistributionCalculator) Calculate(event *models.CommissionEvent, upline []UplineEntry, table configcache.LevelPayoutTable, settings configcache.HierarchySettings) []models.DistributionRecord {
	records := make([]models.DistributionRecord, 0, len(upline))

	for _, entry := range upline {
		if settings.MaxLevels > 0 && entry.Level > settings.MaxLevels {
			continue
		}
		amount, ok := table[entry.Level]
		if !ok || amount <= 0 {
			continue
		}
		if amount < settings.MinimumPayout {
			logger.WithFields(map[string]interface{}{
				"event_id":       event.EventID,
				"participant_id": entry.ParticipantID,
				"level":          entry.Level,
				"amount":         amount,
			}).Debug("分佣金额低于最小派彩，已丢弃")
			continue
		}

		records = append(records, models.DistributionRecord{
			EventID:           event.EventID,
			ParticipantID:     entry.ParticipantID,
			Level:             entry.Level,
			OriginalAmount:    amount,
			DistributedAmount: amount,
			Currency:          settings.Currency,
			TransactionID:     uuid.New().String(),
			Status:            models.DistributionStatusPending,
		})
	}

	return records
}
