package configcache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	KeyLevelPayoutTable  = "level-payout-table"
	KeyHierarchySettings = "hierarchy-settings"
	KeyValidationRuleSet = "validation-rule-set"
)

const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

const (
	CriterionDeposit    = "deposit"
	CriterionBetCount   = "bet_count"
	CriterionBetAmount  = "bet_amount"
	CriterionDaysActive = "days_active"
)

// LevelPayoutTable 层级到固定派彩金额的映射
// 配置中心下发格式为{"level_2": 20.00, "level_3": 5.00}
type LevelPayoutTable map[int]float64

func (t *LevelPayoutTable) UnmarshalJSON(data []byte) error {
	raw := map[string]float64{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	table := make(LevelPayoutTable, len(raw))
	for key, amount := range raw {
		level, err := parseLevelKey(key)
		if err != nil {
			return err
		}
		table[level] = amount
	}
	*t = table
	return nil
}

func parseLevelKey(key string) (int, error) {
	trimmed := strings.TrimPrefix(key, "level_")
	level, err := strconv.Atoi(trimmed)
	if err != nil || level < 1 {
		return 0, fmt.Errorf("invalid payout level key: %s", key)
	}
	return level, nil
}

// HierarchySettings 层级结构参数
type HierarchySettings struct {
	MaxLevels     int     `json:"max_levels"`
	Currency      string  `json:"currency"`
	MinimumPayout float64 `json:"minimum_payout"`
}

func (s HierarchySettings) Validate() error {
	if s.MaxLevels < 1 {
		return fmt.Errorf("max_levels must be positive, got %d", s.MaxLevels)
	}
	if s.MinimumPayout < 0 {
		return fmt.Errorf("minimum_payout must not be negative, got %f", s.MinimumPayout)
	}
	return nil
}

// RuleCriterion 单条校验标准，measured >= threshold
type RuleCriterion struct {
	Type      string  `json:"type"`
	Threshold float64 `json:"threshold"`
	Enabled   bool    `json:"enabled"`
}

// RuleGroup 一组校验标准，组内按Operator合并
type RuleGroup struct {
	Operator string          `json:"operator"`
	Criteria []RuleCriterion `json:"criteria"`
}

// RuleSet 两层布尔规则树，组间按顶层Operator合并
type RuleSet struct {
	RuleID   string      `json:"rule_id"`
	Operator string      `json:"operator"`
	Groups   []RuleGroup `json:"groups"`
}

// IsEmpty 规则树为空时校验默认放行
func (rs *RuleSet) IsEmpty() bool {
	return rs == nil || len(rs.Groups) == 0
}

func (rs *RuleSet) Validate() error {
	if rs.IsEmpty() {
		return nil
	}
	if err := validateOperator(rs.Operator); err != nil {
		return err
	}
	for _, group := range rs.Groups {
		if err := validateOperator(group.Operator); err != nil {
			return err
		}
	}
	return nil
}

func validateOperator(operator string) error {
	switch strings.ToUpper(operator) {
	case OperatorAnd, OperatorOr:
		return nil
	default:
		return fmt.Errorf("invalid rule operator: %s", operator)
	}
}

// ParseValue 在缓存边界将原始配置载荷解析为强类型值
// 解析或校验失败视为配置不可用，调用方退回默认值
func ParseValue(key string, raw json.RawMessage) (interface{}, error) {
	switch key {
	case KeyLevelPayoutTable:
		var table LevelPayoutTable
		if err := json.Unmarshal(raw, &table); err != nil {
			return nil, err
		}
		return table, nil
	case KeyHierarchySettings:
		var settings HierarchySettings
		if err := json.Unmarshal(raw, &settings); err != nil {
			return nil, err
		}
		if err := settings.Validate(); err != nil {
			return nil, err
		}
		return settings, nil
	case KeyValidationRuleSet:
		var rules RuleSet
		if err := json.Unmarshal(raw, &rules); err != nil {
			return nil, err
		}
		if err := rules.Validate(); err != nil {
			return nil, err
		}
		return &rules, nil
	default:
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
}
