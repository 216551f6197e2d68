package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type AuditOutcome string

const (
	AuditOutcomeDone     AuditOutcome = "done"
	AuditOutcomeRejected AuditOutcome = "rejected"
	AuditOutcomeFailed   AuditOutcome = "failed"
)

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// AuditLog 分佣操作审计记录，只追加
type AuditLog struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	AuditID   string       `gorm:"size:36;not null;uniqueIndex" json:"audit_id"`
	EventID   string       `gorm:"size:36;index" json:"event_id"`
	Operation string       `gorm:"size:64;not null" json:"operation"`
	Outcome   AuditOutcome `gorm:"type:enum('done','rejected','failed');not null;index" json:"outcome"`
	Detail    JSONB        `gorm:"type:json" json:"detail"`
	CreatedAt time.Time    `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
