package service

import (
	"strings"

	"cpa-distribution-system/internal/configcache"
	"cpa-distribution-system/pkg/logger"
)

// EventAttributes CPA事件的实测属性
type EventAttributes struct {
	DepositAmount  float64
	BetCount       int
	TotalBetAmount float64
	DaysActive     int
}

type EligibilityValidator struct{}

func NewEligibilityValidator() *EligibilityValidator {
	return &EligibilityValidator{}
}

// Validate 按两层布尔规则树评估事件资格
// 空规则树默认放行（配置中心异常时降级为全部派彩而非全部拒绝）
// 组内AND全真为真（零条启用标准时空真），组内OR至少一真（零条启用标准时为假）
// 未知标准类型按不满足处理，禁用标准完全跳过
func (v *EligibilityValidator) Validate(rules *configcache.RuleSet, attrs EventAttributes) bool {
	if rules.IsEmpty() {
		return true
	}

	groupResults := make([]bool, 0, len(rules.Groups))
	for _, group := range rules.Groups {
		groupResults = append(groupResults, v.evaluateGroup(group, attrs))
	}

	return combine(rules.Operator, groupResults)
}

func (v *EligibilityValidator) evaluateGroup(group configcache.RuleGroup, attrs EventAttributes) bool {
	results := make([]bool, 0, len(group.Criteria))
	for _, criterion := range group.Criteria {
		if !criterion.Enabled {
			continue
		}
		results = append(results, v.evaluateCriterion(criterion, attrs))
	}

	if len(results) == 0 {
		// AND空真，OR零条启用标准视为不满足
		return strings.ToUpper(group.Operator) == configcache.OperatorAnd
	}
	return combine(group.Operator, results)
}

func (v *EligibilityValidator) evaluateCriterion(criterion configcache.RuleCriterion, attrs EventAttributes) bool {
	measured, ok := measuredValue(criterion.Type, attrs)
	if !ok {
		logger.WithFields(map[string]interface{}{
			"criterion_type": criterion.Type,
		}).Warn("未知的校验标准类型，按不满足处理")
		return false
	}
	return measured >= criterion.Threshold
}

func measuredValue(criterionType string, attrs EventAttributes) (float64, bool) {
	switch criterionType {
	case configcache.CriterionDeposit:
		return attrs.DepositAmount, true
	case configcache.CriterionBetCount:
		return float64(attrs.BetCount), true
	case configcache.CriterionBetAmount:
		return attrs.TotalBetAmount, true
	case configcache.CriterionDaysActive:
		return float64(attrs.DaysActive), true
	default:
		return 0, false
	}
}

func combine(operator string, results []bool) bool {
	if strings.ToUpper(operator) == configcache.OperatorOr {
		for _, result := range results {
			if result {
				return true
			}
		}
		return false
	}
	for _, result := range results {
		if !result {
			return false
		}
	}
	return true
}
