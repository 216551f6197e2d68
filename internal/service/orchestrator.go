package service

import (
	"context"
	"encoding/json"
	"time"

	"cpa-distribution-system/internal/configcache"
	"cpa-distribution-system/internal/models"
	"cpa-distribution-system/pkg/errors"
	"cpa-distribution-system/pkg/logger"

	"github.com/google/uuid"
)

// ConfigSource 配置缓存边界，失败时返回调用方默认值，永不报错
type ConfigSource interface {
	PayoutTable(ctx context.Context, defaultTable configcache.LevelPayoutTable) configcache.LevelPayoutTable
	Settings(ctx context.Context, defaultSettings configcache.HierarchySettings) configcache.HierarchySettings
	Rules(ctx context.Context, defaultRules *configcache.RuleSet) *configcache.RuleSet
}

// EventStore 事件与分佣记录的持久化边界
type EventStore interface {
	Create(ctx context.Context, event *models.CommissionEvent) error
	CreateWithDistributions(ctx context.Context, event *models.CommissionEvent, distributions []models.DistributionRecord) error
}

// AuditStore 审计记录的持久化边界，写入尽力而为
type AuditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// PendingStore 批处理源记录的持久化边界
type PendingStore interface {
	ListPending(ctx context.Context, limit int) ([]models.PendingCommission, error)
	MarkProcessed(ctx context.Context, sourceID string) error
	MarkFailed(ctx context.Context, sourceID string, reason string) error
}

// UplineResolver 上线链解析边界
type UplineResolver interface {
	ResolveUpline(ctx context.Context, participantID string, maxLevels int) ([]UplineEntry, error)
}

// StatisticsApplier 统计累加边界，失败只记录不影响主流程
type StatisticsApplier interface {
	ApplyForEvent(ctx context.Context, eventID string, records []models.DistributionRecord, at time.Time) error
}

// SubmitInput 入站分佣事件
// EventID可选，批处理传入确定性ID以保证重试幂等，留空则生成随机ID
type SubmitInput struct {
	EventID                  string
	SubjectUserID            string
	OriginatingParticipantID string
	DepositAmount            float64
	BetCount                 int
	TotalBetAmount           float64
	DaysActive               int
}

// SubmitResult 成功提交的结果
// Warnings承载尽力而为副作用（统计、审计）的失败信息
type SubmitResult struct {
	Event         *models.CommissionEvent     `json:"event"`
	Distributions []models.DistributionRecord `json:"distributions"`
	Total         float64                     `json:"total"`
	Warnings      []string                    `json:"warnings,omitempty"`
}

// BatchResult 一次批处理的统计
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// DistributionDefaults 配置中心不可用时的兜底参数
type DistributionDefaults struct {
	MaxLevels     int
	Currency      string
	MinimumPayout float64
}

type DistributionOrchestrator struct {
	cfg        ConfigSource
	validator  *EligibilityValidator
	resolver   UplineResolver
	calculator *DistributionCalculator
	eventStore EventStore
	stats      StatisticsApplier
	auditStore AuditStore
	pending    PendingStore
	defaults   DistributionDefaults
}

func NewDistributionOrchestrator(
	cfg ConfigSource,
	resolver UplineResolver,
	eventStore EventStore,
	stats StatisticsApplier,
	auditStore AuditStore,
	pending PendingStore,
	defaults DistributionDefaults,
) *DistributionOrchestrator {
	return &DistributionOrchestrator{
		cfg:        cfg,
		validator:  NewEligibilityValidator(),
		resolver:   resolver,
		calculator: NewDistributionCalculator(),
		eventStore: eventStore,
		stats:      stats,
		auditStore: auditStore,
		pending:    pending,
		defaults:   defaults,
	}
}

// SubmitCommissionEvent 处理一个入站分佣事件
// 校验资格 -> 解析上线 -> 计算分佣 -> 持久化 -> 更新统计 -> 写审计
// 统计和审计为尽力而为，失败只记录为警告，分佣记录为权威数据
func (o *DistributionOrchestrator) SubmitCommissionEvent(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if err := validateSubmitInput(input); err != nil {
		return nil, err
	}

	settings := o.cfg.Settings(ctx, configcache.HierarchySettings{
		MaxLevels:     o.defaults.MaxLevels,
		Currency:      o.defaults.Currency,
		MinimumPayout: o.defaults.MinimumPayout,
	})
	table := o.cfg.PayoutTable(ctx, configcache.LevelPayoutTable{})
	rules := o.cfg.Rules(ctx, nil)

	event := o.buildEvent(input, rules)
	attrs := EventAttributes{
		DepositAmount:  input.DepositAmount,
		BetCount:       input.BetCount,
		TotalBetAmount: input.TotalBetAmount,
		DaysActive:     input.DaysActive,
	}

	if !o.validator.Validate(rules, attrs) {
		event.Status = models.EventStatusRejected
		if err := o.eventStore.Create(ctx, event); err != nil {
			return nil, errors.New(errors.ErrPersistence, "保存被拒事件失败", err)
		}
		o.audit(ctx, event.EventID, "submit_commission_event", models.AuditOutcomeRejected, models.JSONB{
			"input":  inputDetail(input),
			"reason": "eligibility rules not satisfied",
		})
		logger.WithFields(map[string]interface{}{
			"event_id":       event.EventID,
			"participant_id": input.OriginatingParticipantID,
		}).Info("事件未通过资格校验")
		return nil, errors.New(errors.ErrInvalidEligibility, "事件未通过资格校验", nil)
	}

	upline, err := o.resolver.ResolveUpline(ctx, input.OriginatingParticipantID, settings.MaxLevels)
	if err != nil {
		o.audit(ctx, event.EventID, "submit_commission_event", models.AuditOutcomeFailed, models.JSONB{
			"input": inputDetail(input),
			"error": err.Error(),
		})
		return nil, err
	}

	distributions := o.calculator.Calculate(event, upline, table, settings)

	if err := o.eventStore.CreateWithDistributions(ctx, event, distributions); err != nil {
		persistErr := errors.New(errors.ErrPersistence, "持久化事件与分佣记录失败", err)
		o.audit(ctx, event.EventID, "submit_commission_event", models.AuditOutcomeFailed, models.JSONB{
			"input": inputDetail(input),
			"error": persistErr.Error(),
		})
		return nil, persistErr
	}

	result := &SubmitResult{
		Event:         event,
		Distributions: distributions,
	}
	for _, distribution := range distributions {
		result.Total += distribution.DistributedAmount
	}

	if err := o.stats.ApplyForEvent(ctx, event.EventID, distributions, event.CreatedAt); err != nil {
		// 统计滞后不影响分佣记录的权威性
		logger.WithFields(map[string]interface{}{
			"event_id": event.EventID,
		}).Error("统计更新失败: ", err)
		result.Warnings = append(result.Warnings, "statistics update failed: "+err.Error())
	}

	if !o.audit(ctx, event.EventID, "submit_commission_event", models.AuditOutcomeDone, models.JSONB{
		"input":              inputDetail(input),
		"distribution_count": len(distributions),
		"total":              result.Total,
	}) {
		result.Warnings = append(result.Warnings, "audit record write failed")
	}

	logger.WithFields(map[string]interface{}{
		"event_id":           event.EventID,
		"participant_id":     input.OriginatingParticipantID,
		"distribution_count": len(distributions),
		"total":              result.Total,
	}).Info("分佣事件已处理")

	return result, nil
}

// ProcessPendingBatch 处理一批待处理源记录
// 单条失败相互隔离，仅在提交成功后标记为processed
func (o *DistributionOrchestrator) ProcessPendingBatch(ctx context.Context, limit int) (*BatchResult, error) {
	items, err := o.pending.ListPending(ctx, limit)
	if err != nil {
		return nil, errors.New(errors.ErrPersistence, "获取待处理记录失败", err)
	}

	result := &BatchResult{}
	for _, item := range items {
		input := SubmitInput{
			// 源记录ID派生确定性事件ID，重试时幂等键可命中
			EventID:                  uuid.NewSHA1(uuid.NameSpaceOID, []byte(item.SourceID)).String(),
			SubjectUserID:            item.SubjectUserID,
			OriginatingParticipantID: item.OriginatingParticipantID,
			DepositAmount:            item.DepositAmount,
			BetCount:                 item.BetCount,
			TotalBetAmount:           item.TotalBetAmount,
			DaysActive:               item.DaysActive,
		}

		if _, err := o.SubmitCommissionEvent(ctx, input); err != nil {
			result.Failed++
			if markErr := o.pending.MarkFailed(ctx, item.SourceID, err.Error()); markErr != nil {
				logger.Error("标记源记录失败状态失败:", item.SourceID, markErr)
			}
			logger.WithFields(map[string]interface{}{
				"source_id": item.SourceID,
			}).Error("批处理单条失败: ", err)
			continue
		}

		if err := o.pending.MarkProcessed(ctx, item.SourceID); err != nil {
			logger.Error("标记源记录完成状态失败:", item.SourceID, err)
		}
		result.Processed++
	}

	if len(items) > 0 {
		logger.WithFields(map[string]interface{}{
			"processed": result.Processed,
			"failed":    result.Failed,
		}).Info("批处理完成")
	}
	return result, nil
}

func (o *DistributionOrchestrator) buildEvent(input SubmitInput, rules *configcache.RuleSet) *models.CommissionEvent {
	eventID := input.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	ruleID := ""
	snapshot := models.JSONB{}
	if !rules.IsEmpty() {
		ruleID = rules.RuleID
		if raw, err := json.Marshal(rules); err == nil {
			_ = json.Unmarshal(raw, &snapshot)
		}
	}

	return &models.CommissionEvent{
		EventID:                  eventID,
		SubjectUserID:            input.SubjectUserID,
		OriginatingParticipantID: input.OriginatingParticipantID,
		DepositAmount:            input.DepositAmount,
		BetCount:                 input.BetCount,
		TotalBetAmount:           input.TotalBetAmount,
		DaysActive:               input.DaysActive,
		RuleID:                   ruleID,
		CriteriaSnapshot:         snapshot,
		Status:                   models.EventStatusApproved,
		CreatedAt:                time.Now(),
	}
}

// audit 写审计记录，失败只记录一次日志，绝不掩盖主流程结果
func (o *DistributionOrchestrator) audit(ctx context.Context, eventID, operation string, outcome models.AuditOutcome, detail models.JSONB) bool {
	entry := &models.AuditLog{
		AuditID:   uuid.New().String(),
		EventID:   eventID,
		Operation: operation,
		Outcome:   outcome,
		Detail:    detail,
	}
	if err := o.auditStore.Create(ctx, entry); err != nil {
		logger.WithFields(map[string]interface{}{
			"event_id":  eventID,
			"operation": operation,
			"outcome":   outcome,
		}).Error("审计记录写入失败: ", err)
		return false
	}
	return true
}

func validateSubmitInput(input SubmitInput) error {
	if input.SubjectUserID == "" {
		return errors.New(errors.ErrInvalidInput, "subject_user_id不能为空", nil)
	}
	if input.OriginatingParticipantID == "" {
		return errors.New(errors.ErrInvalidInput, "originating_participant_id不能为空", nil)
	}
	if input.DepositAmount < 0 || input.TotalBetAmount < 0 {
		return errors.New(errors.ErrInvalidInput, "金额不能为负数", nil)
	}
	if input.BetCount < 0 || input.DaysActive < 0 {
		return errors.New(errors.ErrInvalidInput, "计数不能为负数", nil)
	}
	return nil
}

func inputDetail(input SubmitInput) map[string]interface{} {
	return map[string]interface{}{
		"subject_user_id":            input.SubjectUserID,
		"originating_participant_id": input.OriginatingParticipantID,
		"deposit_amount":             input.DepositAmount,
		"bet_count":                  input.BetCount,
		"total_bet_amount":           input.TotalBetAmount,
		"days_active":                input.DaysActive,
	}
}
