package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// StringArray 物化路径的JSON数组存储
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *StringArray) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, a)
}

// Participant 层级树中的参与者节点
// Level和Path由父节点推导，写入时重算，不信任调用方传入
// 节点永不物理删除，仅置为非激活
type Participant struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ParticipantID string         `gorm:"size:64;not null;uniqueIndex:uk_participant" json:"participant_id"`
	ParentID      *string        `gorm:"size:64;index" json:"parent_id"`
	Level         int            `gorm:"not null;index" json:"level"`
	Path          StringArray    `gorm:"type:json;not null" json:"path"`
	Active        bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Participant) TableName() string {
	return "participants"
}

// ParticipantPathUpdate 移动子树时单个节点的重算结果
// 一次移动产生的全部更新在同一事务内落库
type ParticipantPathUpdate struct {
	ParticipantID string
	ParentID      *string
	Level         int
	Path          StringArray
}
