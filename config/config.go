package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 自动分配批次的失败策略
const (
	FailurePolicyBestEffort = "best_effort" // 单对失败跳过该学生，继续处理
	FailurePolicyFailFast   = "fail_fast"   // 单对失败立即终止整个批次
)

// Config 应用全局配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int        `mapstructure:"port"`
	MaxBodyBytes int64      `mapstructure:"max_body_bytes"`
	CORS         CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 分钟
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（批次锁 + 限流）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 校验配置
// 登录签发由门户负责，本服务只校验 Access Token
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AllocationConfig 分配引擎配置
type AllocationConfig struct {
	// AtomicWrites 为 true 时三步写入放在同一数据库事务中；
	// 为 false 时逐步提交，失败后执行补偿回滚
	AtomicWrites        bool          `mapstructure:"atomic_writes"`
	BatchTimeout        time.Duration `mapstructure:"batch_timeout"`
	BatchFailurePolicy  string        `mapstructure:"batch_failure_policy"`
	BatchLockTTL        time.Duration `mapstructure:"batch_lock_ttl"`
	CompensationRetries int           `mapstructure:"compensation_retries"`
	CompensationBackoff time.Duration `mapstructure:"compensation_backoff"`
}

// RateLimitConfig 自动分配接口限流配置
type RateLimitConfig struct {
	AutoAssignLimit  int           `mapstructure:"auto_assign_limit"`
	AutoAssignWindow time.Duration `mapstructure:"auto_assign_window"`
}

// Load 从 .env、配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	// 本地开发时 .env 不存在属于正常情况
	_ = godotenv.Load()

	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:3000"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "dorm_track")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 空默认值让 viper 感知该键，环境变量才能参与 Unmarshal
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("allocation.atomic_writes", true)
	v.SetDefault("allocation.batch_timeout", "30s")
	v.SetDefault("allocation.batch_failure_policy", FailurePolicyBestEffort)
	v.SetDefault("allocation.batch_lock_ttl", "60s")
	v.SetDefault("allocation.compensation_retries", 3)
	v.SetDefault("allocation.compensation_backoff", "100ms")

	v.SetDefault("rate_limit.auto_assign_limit", 5)
	v.SetDefault("rate_limit.auto_assign_window", "1m")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("DORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	switch c.Allocation.BatchFailurePolicy {
	case FailurePolicyBestEffort, FailurePolicyFailFast:
	default:
		return fmt.Errorf("配置校验失败: allocation.batch_failure_policy 仅支持 %s 或 %s，实际为 %q",
			FailurePolicyBestEffort, FailurePolicyFailFast, c.Allocation.BatchFailurePolicy)
	}
	if c.Allocation.BatchTimeout <= 0 {
		return fmt.Errorf("配置校验失败: allocation.batch_timeout 必须大于 0")
	}
	if c.Allocation.CompensationRetries < 0 {
		return fmt.Errorf("配置校验失败: allocation.compensation_retries 不能为负数")
	}
	return nil
}
