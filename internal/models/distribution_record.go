package models

import (
	"time"
)

type DistributionStatus string

const (
	DistributionStatusPending   DistributionStatus = "pending"
	DistributionStatusSettled   DistributionStatus = "settled"
	DistributionStatusCancelled DistributionStatus = "cancelled"
)

// DistributionRecord 每个(事件,上级层级)对应一条分佣记录
// (event_id, participant_id)唯一键即幂等键，金额修正只新增记录不更新
type DistributionRecord struct {
	ID                uint64             `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID           string             `gorm:"size:36;not null;uniqueIndex:uk_event_participant" json:"event_id"`
	ParticipantID     string             `gorm:"size:64;not null;uniqueIndex:uk_event_participant;index" json:"participant_id"`
	Level             int                `gorm:"not null" json:"level"`
	OriginalAmount    float64            `gorm:"type:decimal(18,2);not null" json:"original_amount"`
	DistributedAmount float64            `gorm:"type:decimal(18,2);not null" json:"distributed_amount"`
	Currency          string             `gorm:"size:8;not null" json:"currency"`
	TransactionID     string             `gorm:"size:36;not null;uniqueIndex:uk_transaction" json:"transaction_id"`
	Status            DistributionStatus `gorm:"type:enum('pending','settled','cancelled');not null;default:'pending'" json:"status"`
	CreatedAt         time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

func (DistributionRecord) TableName() string {
	return "distribution_records"
}
