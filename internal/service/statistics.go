package service

import (
	"context"
	"sort"
	"time"

	"cpa-distribution-system/internal/models"
	"cpa-distribution-system/pkg/errors"
	"cpa-distribution-system/pkg/logger"
)

// StatisticsStore 统计快照的持久化边界
type StatisticsStore interface {
	ApplyDelta(ctx context.Context, participantID string, periodStart, periodEnd time.Time, level int, amount float64) error
	GenerateApplicationHash(eventID string, participantIDs []string) string
	ApplicationExists(ctx context.Context, hash string) (bool, error)
	RecordApplication(ctx context.Context, application *models.StatisticsApplication) error
	GetByParticipantInRange(ctx context.Context, participantID string, periodStart, periodEnd time.Time) ([]models.StatisticsSnapshot, error)
	ResetForRebuild(ctx context.Context, participantID string, from time.Time, eventIDs []string) error
}

// DistributionReader 分佣记录的只读访问，统计重建的权威数据源
type DistributionReader interface {
	GetByParticipantInRange(ctx context.Context, participantID string, start, end time.Time) ([]models.DistributionRecord, error)
}

// LevelStatistics 单个层级的统计
type LevelStatistics struct {
	Level       int     `json:"level"`
	TotalCount  int64   `json:"total_count"`
	TotalAmount float64 `json:"total_amount"`
}

// StatisticsSummary 参与者在周期范围内的统计汇总
type StatisticsSummary struct {
	ParticipantID string            `json:"participant_id"`
	PeriodStart   time.Time         `json:"period_start"`
	PeriodEnd     time.Time         `json:"period_end"`
	TotalCount    int64             `json:"total_count"`
	TotalAmount   float64           `json:"total_amount"`
	Levels        []LevelStatistics `json:"levels"`
}

type StatisticsService struct {
	statsStore StatisticsStore
	distReader DistributionReader
}

func NewStatisticsService(statsStore StatisticsStore, distReader DistributionReader) *StatisticsService {
	return &StatisticsService{
		statsStore: statsStore,
		distReader: distReader,
	}
}

// ApplyForEvent 将一个事件的分佣批次累加到统计快照
// 使用应用哈希确保幂等性，重复应用检测为重复并跳过
func (s *StatisticsService) ApplyForEvent(ctx context.Context, eventID string, records []models.DistributionRecord, at time.Time) error {
	if len(records) == 0 {
		return nil
	}

	participantIDs := make([]string, 0, len(records))
	for _, record := range records {
		participantIDs = append(participantIDs, record.ParticipantID)
	}
	hash := s.statsStore.GenerateApplicationHash(eventID, participantIDs)

	exists, err := s.statsStore.ApplicationExists(ctx, hash)
	if err != nil {
		return errors.New(errors.ErrStatisticsUpdate, "检查统计应用是否存在失败", err)
	}
	if exists {
		logger.WithFields(map[string]interface{}{
			"event_id": eventID,
			"hash":     hash,
		}).Debug("统计已应用")
		return nil
	}

	if err := s.statsStore.RecordApplication(ctx, &models.StatisticsApplication{
		ApplicationHash: hash,
		EventID:         eventID,
	}); err != nil {
		return errors.New(errors.ErrStatisticsUpdate, "保存统计应用记录失败", err)
	}

	periodStart, periodEnd := monthPeriod(at)
	for _, record := range records {
		if err := s.statsStore.ApplyDelta(ctx, record.ParticipantID, periodStart, periodEnd, record.Level, record.DistributedAmount); err != nil {
			return errors.New(errors.ErrStatisticsUpdate, "累加统计增量失败", err)
		}
	}

	logger.WithFields(map[string]interface{}{
		"event_id":     eventID,
		"record_count": len(records),
		"period_start": periodStart,
	}).Info("统计已更新")

	return nil
}

// GetStatistics 获取参与者在周期范围内的统计汇总
// 总计为各层级行求和，层级按编号升序返回
func (s *StatisticsService) GetStatistics(ctx context.Context, participantID string, periodStart, periodEnd time.Time) (*StatisticsSummary, error) {
	snapshots, err := s.statsStore.GetByParticipantInRange(ctx, participantID, periodStart, periodEnd)
	if err != nil {
		return nil, errors.New(errors.ErrPersistence, "获取统计快照失败", err)
	}

	summary := &StatisticsSummary{
		ParticipantID: participantID,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Levels:        []LevelStatistics{},
	}

	byLevel := make(map[int]*LevelStatistics)
	levels := make([]int, 0)
	for _, snapshot := range snapshots {
		summary.TotalCount += snapshot.TotalCount
		summary.TotalAmount += snapshot.TotalAmount
		stats, ok := byLevel[snapshot.Level]
		if !ok {
			stats = &LevelStatistics{Level: snapshot.Level}
			byLevel[snapshot.Level] = stats
			levels = append(levels, snapshot.Level)
		}
		stats.TotalCount += snapshot.TotalCount
		stats.TotalAmount += snapshot.TotalAmount
	}

	sort.Ints(levels)
	for _, level := range levels {
		summary.Levels = append(summary.Levels, *byLevel[level])
	}
	return summary, nil
}

// RebuildStatistics 从权威分佣记录重建参与者的统计快照
// 先清除指定时间之后的快照与去重记录，再逐事件重新累加
func (s *StatisticsService) RebuildStatistics(ctx context.Context, participantID string, from time.Time) error {
	now := time.Now()
	records, err := s.distReader.GetByParticipantInRange(ctx, participantID, from, now)
	if err != nil {
		return errors.New(errors.ErrPersistence, "获取分佣记录失败", err)
	}

	byEvent := make(map[string][]models.DistributionRecord)
	eventIDs := make([]string, 0)
	for _, record := range records {
		if _, ok := byEvent[record.EventID]; !ok {
			eventIDs = append(eventIDs, record.EventID)
		}
		byEvent[record.EventID] = append(byEvent[record.EventID], record)
	}

	if err := s.statsStore.ResetForRebuild(ctx, participantID, from, eventIDs); err != nil {
		return errors.New(errors.ErrStatisticsUpdate, "清除统计快照失败", err)
	}

	for _, eventID := range eventIDs {
		group := byEvent[eventID]
		if err := s.ApplyForEvent(ctx, eventID, group, group[0].CreatedAt); err != nil {
			return err
		}
	}

	logger.WithFields(map[string]interface{}{
		"participant_id": participantID,
		"event_count":    len(eventIDs),
		"from":           from,
	}).Info("统计已重建")

	return nil
}

// monthPeriod 返回时间所在自然月的闭区间
func monthPeriod(at time.Time) (time.Time, time.Time) {
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}
