package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Update    UpdateConfig    `mapstructure:"update"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type            string `mapstructure:"type"` // sqlite/mysql/postgres
	Path            string `mapstructure:"path"` // sqlite 模式的库文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// ProvidersConfig 数据源配置
type ProvidersConfig struct {
	Default string         `mapstructure:"default"` // 默认数据源名
	JQData  ProviderConfig `mapstructure:"jqdata"`
	Tushare ProviderConfig `mapstructure:"tushare"`
}

// ProviderConfig 单个数据源配置
type ProviderConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	Token     string `mapstructure:"token"`
	Timeout   int    `mapstructure:"timeout"`    // 请求超时（秒）
	Retry     int    `mapstructure:"retry"`      // 最大重试次数
	RateLimit int    `mapstructure:"rate_limit"` // 每分钟请求上限
}

// UpdateConfig 数据更新配置
type UpdateConfig struct {
	MaxWorkers       int    `mapstructure:"max_workers"`        // 并发工作协程数
	BatchSize        int    `mapstructure:"batch_size"`         // 批量写入大小
	HistoryStartDate string `mapstructure:"history_start_date"` // 无历史数据时的回溯起点 YYYY-MM-DD
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// 默认历史起始日期，配置缺失或格式错误时回退
const defaultHistoryStartDate = "2019-01-01"

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateConfig 验证配置并填充默认值
func validateConfig(config *Config) error {
	switch config.Database.Type {
	case "sqlite", "mysql", "postgres":
	case "":
		config.Database.Type = "sqlite"
	default:
		return fmt.Errorf("数据库类型必须是 sqlite、mysql 或 postgres")
	}

	if config.Database.Type == "sqlite" && config.Database.Path == "" {
		config.Database.Path = "data/stock_data.db"
	}

	if !config.Providers.JQData.Enabled && !config.Providers.Tushare.Enabled {
		return fmt.Errorf("至少需要启用一个数据源")
	}

	if config.Providers.Default == "" {
		if config.Providers.JQData.Enabled {
			config.Providers.Default = "jqdata"
		} else {
			config.Providers.Default = "tushare"
		}
	}

	if config.Providers.JQData.Retry < 0 {
		config.Providers.JQData.Retry = 0
	}
	if config.Providers.Tushare.Retry < 0 {
		config.Providers.Tushare.Retry = 0
	}

	if config.Update.MaxWorkers <= 0 {
		config.Update.MaxWorkers = 4
	}

	if config.Update.BatchSize <= 0 {
		config.Update.BatchSize = 1000
	}

	if _, err := time.Parse("2006-01-02", config.Update.HistoryStartDate); err != nil {
		config.Update.HistoryStartDate = defaultHistoryStartDate
	}

	return nil
}

// HistoryFloor 返回解析后的历史回溯起点
func (c *UpdateConfig) HistoryFloor() time.Time {
	t, err := time.Parse("2006-01-02", c.HistoryStartDate)
	if err != nil {
		t, _ = time.Parse("2006-01-02", defaultHistoryStartDate)
	}
	return t
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "sqlite":
		return c.Path
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=Asia/Shanghai",
			c.Host, c.Port, c.User, c.Password, c.DBName)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	default:
		return ""
	}
}
