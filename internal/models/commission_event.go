package models

import (
	"time"
)

type EventStatus string

const (
	EventStatusApproved EventStatus = "approved"
	EventStatusRejected EventStatus = "rejected"
)

// CommissionEvent 一次分佣资格校验对应的CPA事件
// 创建后不可变，CriteriaSnapshot仅存档不再参与计算
type CommissionEvent struct {
	ID                       uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID                  string      `gorm:"size:36;not null;uniqueIndex:uk_event" json:"event_id"`
	SubjectUserID            string      `gorm:"size:64;not null;index" json:"subject_user_id"`
	OriginatingParticipantID string      `gorm:"size:64;not null;index" json:"originating_participant_id"`
	DepositAmount            float64     `gorm:"type:decimal(18,2);not null;default:0" json:"deposit_amount"`
	BetCount                 int         `gorm:"not null;default:0" json:"bet_count"`
	TotalBetAmount           float64     `gorm:"type:decimal(18,2);not null;default:0" json:"total_bet_amount"`
	DaysActive               int         `gorm:"not null;default:0" json:"days_active"`
	RuleID                   string      `gorm:"size:64" json:"rule_id"`
	CriteriaSnapshot         JSONB       `gorm:"type:json" json:"criteria_snapshot"`
	Status                   EventStatus `gorm:"type:enum('approved','rejected');not null" json:"status"`
	CreatedAt                time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (CommissionEvent) TableName() string {
	return "commission_events"
}
