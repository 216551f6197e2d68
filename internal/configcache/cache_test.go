package configcache

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"
)

type fakeFetcher struct {
	values map[string]json.RawMessage
	err    error
	calls  int
}

func (f *fakeFetcher) FetchValue(ctx context.Context, key string) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.values[key]
	if !ok {
		return nil, fmt.Errorf("no value for key %s", key)
	}
	return value, nil
}

func TestCacheGetFetchesOnceWithinTTL(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]json.RawMessage{
		KeyLevelPayoutTable: json.RawMessage(`{"level_2": 20.00, "level_3": 5.00}`),
	}}
	cache := NewCache(fetcher, time.Minute)
	ctx := context.Background()

	want := LevelPayoutTable{2: 20.00, 3: 5.00}
	for i := 0; i < 3; i++ {
		got := cache.PayoutTable(ctx, nil)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("payout table = %v, want %v", got, want)
		}
	}
	if fetcher.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls)
	}
}

func TestCacheGetRefetchesAfterTTL(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]json.RawMessage{
		KeyHierarchySettings: json.RawMessage(`{"max_levels": 3, "currency": "USD", "minimum_payout": 0.01}`),
	}}
	cache := NewCache(fetcher, time.Millisecond)
	ctx := context.Background()

	cache.Settings(ctx, HierarchySettings{})
	time.Sleep(5 * time.Millisecond)
	cache.Settings(ctx, HierarchySettings{})

	if fetcher.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", fetcher.calls)
	}
}

func TestCacheGetReturnsDefaultOnFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("provider down")}
	cache := NewCache(fetcher, time.Minute)

	defaultSettings := HierarchySettings{MaxLevels: 3, Currency: "USD", MinimumPayout: 0.01}
	got := cache.Settings(context.Background(), defaultSettings)
	if got != defaultSettings {
		t.Errorf("settings = %v, want default %v", got, defaultSettings)
	}
}

func TestCacheGetPrefersStaleOverDefault(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]json.RawMessage{
		KeyHierarchySettings: json.RawMessage(`{"max_levels": 5, "currency": "EUR", "minimum_payout": 0.05}`),
	}}
	cache := NewCache(fetcher, time.Millisecond)
	ctx := context.Background()

	fetched := cache.Settings(ctx, HierarchySettings{})
	if fetched.MaxLevels != 5 {
		t.Fatalf("initial fetch failed: %v", fetched)
	}

	// 值过期且配置中心不可用时，过期值优于默认值
	fetcher.err = fmt.Errorf("provider down")
	time.Sleep(5 * time.Millisecond)

	got := cache.Settings(ctx, HierarchySettings{MaxLevels: 3, Currency: "USD"})
	if got.MaxLevels != 5 || got.Currency != "EUR" {
		t.Errorf("settings = %v, want stale value", got)
	}
}

func TestCacheGetReturnsDefaultOnParseFailure(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]json.RawMessage{
		KeyHierarchySettings: json.RawMessage(`{"max_levels": 0}`),
	}}
	cache := NewCache(fetcher, time.Minute)

	defaultSettings := HierarchySettings{MaxLevels: 3, Currency: "USD", MinimumPayout: 0.01}
	got := cache.Settings(context.Background(), defaultSettings)
	if got != defaultSettings {
		t.Errorf("invalid payload should fall back to default, got %v", got)
	}
}

func TestCacheInvalidatePushesNewValue(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]json.RawMessage{
		KeyLevelPayoutTable: json.RawMessage(`{"level_2": 20.00}`),
	}}
	cache := NewCache(fetcher, time.Hour)
	ctx := context.Background()

	cache.PayoutTable(ctx, nil)

	cache.Invalidate(KeyLevelPayoutTable, json.RawMessage(`{"level_2": 30.00}`))

	got := cache.PayoutTable(ctx, nil)
	if got[2] != 30.00 {
		t.Errorf("payout level 2 = %f, want pushed 30.00", got[2])
	}
	if fetcher.calls != 1 {
		t.Errorf("push invalidation triggered a fetch: calls = %d", fetcher.calls)
	}
}

func TestCacheInvalidateKeepsValueOnBadPayload(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]json.RawMessage{
		KeyLevelPayoutTable: json.RawMessage(`{"level_2": 20.00}`),
	}}
	cache := NewCache(fetcher, time.Hour)
	ctx := context.Background()

	cache.PayoutTable(ctx, nil)
	cache.Invalidate(KeyLevelPayoutTable, json.RawMessage(`{"not_a_level": true}`))

	got := cache.PayoutTable(ctx, nil)
	if got[2] != 20.00 {
		t.Errorf("payout level 2 = %f, bad push should keep existing value", got[2])
	}
}

func TestCacheRules(t *testing.T) {
	fetcher := &fakeFetcher{values: map[string]json.RawMessage{
		KeyValidationRuleSet: json.RawMessage(`{
			"rule_id": "r1",
			"operator": "AND",
			"groups": [
				{"operator": "OR", "criteria": [{"type": "deposit", "threshold": 100, "enabled": true}]}
			]
		}`),
	}}
	cache := NewCache(fetcher, time.Minute)

	rules := cache.Rules(context.Background(), nil)
	if rules == nil || rules.RuleID != "r1" {
		t.Fatalf("rules = %v, want r1", rules)
	}
	if len(rules.Groups) != 1 || rules.Groups[0].Criteria[0].Threshold != 100 {
		t.Errorf("rules not parsed: %+v", rules)
	}
}
