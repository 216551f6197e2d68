package scheduler

import (
	"context"

	"cpa-distribution-system/internal/service"
	"cpa-distribution-system/pkg/logger"

	"github.com/robfig/cron/v3"
)

// BatchScheduler 周期性触发批处理
// 去重由编排器和存储层的幂等键保证，调度器只负责触发
type BatchScheduler struct {
	cron         *cron.Cron
	orchestrator *service.DistributionOrchestrator
	cronExpr     string
	batchLimit   int
}

func NewBatchScheduler(orchestrator *service.DistributionOrchestrator, cronExpr string, batchLimit int) *BatchScheduler {
	return &BatchScheduler{
		cron:         cron.New(cron.WithSeconds()),
		orchestrator: orchestrator,
		cronExpr:     cronExpr,
		batchLimit:   batchLimit,
	}
}

func (s *BatchScheduler) Start() error {
	_, err := s.cron.AddFunc(s.cronExpr, s.runBatch)
	if err != nil {
		return err
	}

	s.cron.Start()
	logger.Info("Distribution batch scheduler started")
	return nil
}

func (s *BatchScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Distribution batch scheduler stopped")
}

func (s *BatchScheduler) runBatch() {
	ctx := context.Background()

	logger.WithFields(map[string]interface{}{
		"batch_limit": s.batchLimit,
	}).Info("Starting distribution batch")

	result, err := s.orchestrator.ProcessPendingBatch(ctx, s.batchLimit)
	if err != nil {
		logger.WithError(err).Error("Distribution batch failed")
		return
	}

	logger.WithFields(map[string]interface{}{
		"processed": result.Processed,
		"failed":    result.Failed,
	}).Info("Distribution batch completed")
}

// TriggerManualBatch 供运维接口手动触发一次批处理
func (s *BatchScheduler) TriggerManualBatch(ctx context.Context, limit int) (*service.BatchResult, error) {
	if limit <= 0 {
		limit = s.batchLimit
	}
	return s.orchestrator.ProcessPendingBatch(ctx, limit)
}
