package configcache

import (
	"context"
	"encoding/json"
	"time"

	"cpa-distribution-system/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// InvalidationMessage 配置中心推送的失效消息
type InvalidationMessage struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Subscriber 通过Redis Pub/Sub接收配置推送失效
// 连接丢失后按指数退避重订阅，退避有上限且次数有界
// 重试耗尽后缓存继续以过期值/默认值运行，不影响主流程
type Subscriber struct {
	client     *redis.Client
	channel    string
	cache      *Cache
	baseWait   time.Duration
	maxWait    time.Duration
	maxRetries int
	stopChan   chan struct{}
}

func NewSubscriber(client *redis.Client, channel string, cache *Cache, baseWait, maxWait time.Duration, maxRetries int) *Subscriber {
	return &Subscriber{
		client:     client,
		channel:    channel,
		cache:      cache,
		baseWait:   baseWait,
		maxWait:    maxWait,
		maxRetries: maxRetries,
		stopChan:   make(chan struct{}),
	}
}

func (s *Subscriber) Start(ctx context.Context) {
	retries := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		err := s.consume(ctx, &retries)
		if err == nil {
			return
		}

		retries++
		if retries > s.maxRetries {
			logger.Error("Config subscription retries exhausted, cache will serve stale values:", err)
			return
		}

		wait := s.backoffWait(retries)
		logger.WithFields(map[string]interface{}{
			"channel": s.channel,
			"retry":   retries,
			"wait":    wait.String(),
		}).Warn("Config subscription lost, resubscribing")

		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-time.After(wait):
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, retries *int) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"channel": s.channel,
	}).Info("Config invalidation subscription established")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopChan:
			return nil
		default:
		}

		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		*retries = 0

		var invalidation InvalidationMessage
		if err := json.Unmarshal([]byte(msg.Payload), &invalidation); err != nil {
			logger.Warn("Failed to parse invalidation message:", err)
			continue
		}
		if invalidation.Key == "" || len(invalidation.Value) == 0 {
			logger.Warn("Invalidation message missing key or value, ignored")
			continue
		}

		s.cache.Invalidate(invalidation.Key, invalidation.Value)
	}
}

func (s *Subscriber) backoffWait(retries int) time.Duration {
	wait := s.baseWait
	for i := 1; i < retries; i++ {
		wait *= 2
		if wait >= s.maxWait {
			return s.maxWait
		}
	}
	if wait > s.maxWait {
		return s.maxWait
	}
	return wait
}

func (s *Subscriber) Stop() {
	close(s.stopChan)
}
