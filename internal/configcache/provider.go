package configcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Provider 外部配置中心的HTTP客户端
// 所有请求携带有界超时，超时由客户端整体控制
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

func NewProvider(baseURL string, timeout time.Duration) *Provider {
	return &Provider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type valueResponse struct {
	Value     json.RawMessage `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// FetchValue 拉取指定配置键的当前值
func (p *Provider) FetchValue(ctx context.Context, key string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/api/v1/config/%s", p.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config provider returned status %d for key %s", resp.StatusCode, key)
	}

	var body valueResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Value) == 0 {
		return nil, fmt.Errorf("config provider returned empty value for key %s", key)
	}
	return body.Value, nil
}

// Health 探测配置中心健康状态
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("config provider unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
