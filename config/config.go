// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 环境变量覆盖项
const (
	EnvDataDir   = "DEADSWITCH_DATA_DIR"
	EnvDBBackend = "DEADSWITCH_DB_BACKEND"
	EnvNATSURL   = "DEADSWITCH_NATS_URL"
	EnvLogLevel  = "DEADSWITCH_LOG_LEVEL"
)

// 存储后端
const (
	BackendBadger = "badger"
	BackendBolt   = "bolt"
)

// Config 主配置结构
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Keeper   KeeperConfig   `yaml:"keeper"`
	Events   EventsConfig   `yaml:"events"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Backend string `yaml:"backend"` // "badger" | "bolt"
	Path    string `yaml:"path"`

	// BadgerDB配置
	ValueLogFileSize int64 `yaml:"value_log_file_size"` // 64 << 20 (64MB)
	NumMemtables     int   `yaml:"num_memtables"`       // 2

	// 查询缓存
	VaultCacheSize int `yaml:"vault_cache_size"` // 1024
}

// LedgerConfig 最低保留金参数
type LedgerConfig struct {
	LamportsPerByteYear uint64  `yaml:"lamports_per_byte_year"` // 3480
	ExemptionThreshold  float64 `yaml:"exemption_threshold"`    // 2.0
}

// KeeperConfig 过期扫描 / 自动触发
type KeeperConfig struct {
	Interval      time.Duration `yaml:"interval"`       // 1 * time.Minute
	HunterAddress string        `yaml:"hunter_address"` // 为空时只告警不触发
	// 剩余时间小于等于这些值时发出对应级别的告警
	FinalWindow   time.Duration `yaml:"final_window"`   // 24h
	UrgentWindow  time.Duration `yaml:"urgent_window"`  // 72h
	WarningWindow time.Duration `yaml:"warning_window"` // 168h
}

// EventsConfig 事件推送
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"` // 为空时不推送
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MetricsConfig prometheus 暴露地址，为空时不启动
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig 日志
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Backend:          BackendBadger,
			Path:             "./data/deadswitch",
			ValueLogFileSize: 64 << 20,
			NumMemtables:     2,
			VaultCacheSize:   1024,
		},
		Ledger: LedgerConfig{
			LamportsPerByteYear: 3480,
			ExemptionThreshold:  2.0,
		},
		Keeper: KeeperConfig{
			Interval:      1 * time.Minute,
			FinalWindow:   24 * time.Hour,
			UrgentWindow:  72 * time.Hour,
			WarningWindow: 7 * 24 * time.Hour,
		},
		Events: EventsConfig{
			SubjectPrefix: "deadswitch",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load 默认配置 <- YAML 文件 <- .env / 环境变量
// path 为空时跳过文件；.env 不存在不算错误
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvDBBackend); v != "" {
		c.Database.Backend = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.Events.NATSURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate 验证配置合法性
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendBadger, BackendBolt:
	default:
		return fmt.Errorf("unknown database backend %q", c.Database.Backend)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Ledger.LamportsPerByteYear == 0 {
		return fmt.Errorf("LamportsPerByteYear must be positive")
	}
	if c.Ledger.ExemptionThreshold <= 0 {
		return fmt.Errorf("ExemptionThreshold must be positive")
	}
	if c.Keeper.Interval <= 0 {
		return fmt.Errorf("keeper interval must be positive")
	}
	k := c.Keeper
	if k.FinalWindow <= 0 || k.FinalWindow > k.UrgentWindow || k.UrgentWindow > k.WarningWindow {
		return fmt.Errorf("keeper warning windows must satisfy 0 < final <= urgent <= warning")
	}
	return nil
}
