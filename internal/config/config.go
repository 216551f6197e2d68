package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Server       ServerConfig       `mapstructure:"server"`
	Redis        RedisConfig        `mapstructure:"redis"`
	ConfigSource ConfigSourceConfig `mapstructure:"config_source"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	InvalidateChannel string `mapstructure:"invalidate_channel"`
}

// ConfigSourceConfig 外部配置中心的访问参数
// 缓存TTL和重订阅退避上限由此处控制
type ConfigSourceConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	FetchTimeout        int    `mapstructure:"fetch_timeout"`
	CacheTTL            int    `mapstructure:"cache_ttl"`
	ResubscribeBaseWait int    `mapstructure:"resubscribe_base_wait"`
	ResubscribeMaxWait  int    `mapstructure:"resubscribe_max_wait"`
	ResubscribeRetries  int    `mapstructure:"resubscribe_retries"`
}

// DistributionConfig 分佣引擎的本地参数
// 层级上限等业务参数来自配置中心，此处仅为兜底默认值
type DistributionConfig struct {
	BatchCron            string  `mapstructure:"batch_cron"`
	BatchLimit           int     `mapstructure:"batch_limit"`
	DefaultMaxLevels     int     `mapstructure:"default_max_levels"`
	DefaultCurrency      string  `mapstructure:"default_currency"`
	DefaultMinimumPayout float64 `mapstructure:"default_minimum_payout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(c *Config) {
	if c.ConfigSource.FetchTimeout <= 0 {
		c.ConfigSource.FetchTimeout = 5
	}
	if c.ConfigSource.CacheTTL <= 0 {
		c.ConfigSource.CacheTTL = 300
	}
	if c.ConfigSource.ResubscribeBaseWait <= 0 {
		c.ConfigSource.ResubscribeBaseWait = 1
	}
	if c.ConfigSource.ResubscribeMaxWait <= 0 {
		c.ConfigSource.ResubscribeMaxWait = 60
	}
	if c.ConfigSource.ResubscribeRetries <= 0 {
		c.ConfigSource.ResubscribeRetries = 10
	}
	if c.Redis.InvalidateChannel == "" {
		c.Redis.InvalidateChannel = "cpa:config:invalidate"
	}
	if c.Distribution.BatchLimit <= 0 {
		c.Distribution.BatchLimit = 100
	}
	if c.Distribution.DefaultMaxLevels <= 0 {
		c.Distribution.DefaultMaxLevels = 3
	}
	if c.Distribution.DefaultCurrency == "" {
		c.Distribution.DefaultCurrency = "USD"
	}
	if c.Distribution.DefaultMinimumPayout <= 0 {
		c.Distribution.DefaultMinimumPayout = 0.01
	}
}
