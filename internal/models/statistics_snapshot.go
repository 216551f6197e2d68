package models

import (
	"time"
)

// StatisticsSnapshot 按(参与者,周期,层级)维度的分佣汇总
// 合并更新由数据库原子累加完成，读取时跨层级求和得到总计
type StatisticsSnapshot struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ParticipantID string    `gorm:"size:64;not null;uniqueIndex:uk_participant_period_level" json:"participant_id"`
	PeriodStart   time.Time `gorm:"not null;uniqueIndex:uk_participant_period_level" json:"period_start"`
	PeriodEnd     time.Time `gorm:"not null;index" json:"period_end"`
	Level         int       `gorm:"not null;uniqueIndex:uk_participant_period_level" json:"level"`
	TotalCount    int64     `gorm:"not null;default:0" json:"total_count"`
	TotalAmount   float64   `gorm:"type:decimal(18,2);not null;default:0" json:"total_amount"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StatisticsSnapshot) TableName() string {
	return "statistics_snapshots"
}

// StatisticsApplication 统计应用去重记录
// 同一事件的分佣批次重复应用时通过唯一哈希检测为重复并跳过
type StatisticsApplication struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationHash string    `gorm:"size:64;not null;uniqueIndex" json:"application_hash"`
	EventID         string    `gorm:"size:36;not null;index" json:"event_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (StatisticsApplication) TableName() string {
	return "statistics_applications"
}
