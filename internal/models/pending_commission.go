package models

import (
	"time"
)

type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusProcessed PendingStatus = "processed"
	PendingStatusFailed    PendingStatus = "failed"
)

// PendingCommission 批处理任务的待处理源记录
// 仅在提交成功后标记为processed，失败记录原因供重试
type PendingCommission struct {
	ID                       uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceID                 string        `gorm:"size:64;not null;uniqueIndex:uk_source" json:"source_id"`
	SubjectUserID            string        `gorm:"size:64;not null" json:"subject_user_id"`
	OriginatingParticipantID string        `gorm:"size:64;not null" json:"originating_participant_id"`
	DepositAmount            float64       `gorm:"type:decimal(18,2);not null;default:0" json:"deposit_amount"`
	BetCount                 int           `gorm:"not null;default:0" json:"bet_count"`
	TotalBetAmount           float64       `gorm:"type:decimal(18,2);not null;default:0" json:"total_bet_amount"`
	DaysActive               int           `gorm:"not null;default:0" json:"days_active"`
	Status                   PendingStatus `gorm:"type:enum('pending','processed','failed');not null;default:'pending';index" json:"status"`
	LastError                string        `gorm:"size:512" json:"last_error"`
	ProcessedAt              *time.Time    `json:"processed_at"`
	CreatedAt                time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (PendingCommission) TableName() string {
	return "pending_commissions"
}
