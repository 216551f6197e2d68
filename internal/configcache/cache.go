package configcache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"cpa-distribution-system/pkg/logger"
)

const DefaultTTL = 5 * time.Minute

// ValueFetcher 配置值拉取接口，由Provider实现
type ValueFetcher interface {
	FetchValue(ctx context.Context, key string) (json.RawMessage, error)
}

type entry struct {
	value     interface{}
	fetchedAt time.Time
}

// Cache 进程内配置缓存
// 读多写少，整值替换，读取方只会看到旧值或新值不会看到撕裂值
// 拉取失败返回调用方提供的默认值，缓存故障永不上抛给编排器
type Cache struct {
	fetcher ValueFetcher
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]entry
}

func NewCache(fetcher ValueFetcher, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Get 返回缓存值，过期或缺失时回源拉取，拉取失败返回默认值
func (c *Cache) Get(ctx context.Context, key string, defaultValue interface{}) interface{} {
	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Since(cached.fetchedAt) < c.ttl {
		return cached.value
	}

	raw, err := c.fetcher.FetchValue(ctx, key)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"key": key,
		}).Warn("配置拉取失败，使用默认值: ", err)
		if ok {
			// 过期值仍然优于默认值
			return cached.value
		}
		return defaultValue
	}

	value, err := ParseValue(key, raw)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"key": key,
		}).Warn("配置解析失败，使用默认值: ", err)
		if ok {
			return cached.value
		}
		return defaultValue
	}

	c.store(key, value)
	return value
}

// Invalidate 应用配置中心的推送失效，与拉取竞争时后写者胜
func (c *Cache) Invalidate(key string, raw json.RawMessage) {
	value, err := ParseValue(key, raw)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"key": key,
		}).Warn("推送配置解析失败，保留现有缓存: ", err)
		return
	}

	c.store(key, value)
	logger.WithFields(map[string]interface{}{
		"key": key,
	}).Info("配置已通过推送更新")
}

func (c *Cache) store(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// PayoutTable 获取层级派彩表，不可用时返回默认表
func (c *Cache) PayoutTable(ctx context.Context, defaultTable LevelPayoutTable) LevelPayoutTable {
	value := c.Get(ctx, KeyLevelPayoutTable, defaultTable)
	if table, ok := value.(LevelPayoutTable); ok {
		return table
	}
	return defaultTable
}

// Settings 获取层级参数，不可用时返回默认参数
func (c *Cache) Settings(ctx context.Context, defaultSettings HierarchySettings) HierarchySettings {
	value := c.Get(ctx, KeyHierarchySettings, defaultSettings)
	if settings, ok := value.(HierarchySettings); ok {
		return settings
	}
	return defaultSettings
}

// Rules 获取校验规则树，不可用时返回默认规则
func (c *Cache) Rules(ctx context.Context, defaultRules *RuleSet) *RuleSet {
	value := c.Get(ctx, KeyValidationRuleSet, defaultRules)
	if rules, ok := value.(*RuleSet); ok {
		return rules
	}
	return defaultRules
}
