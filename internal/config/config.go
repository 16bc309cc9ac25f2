package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig        `mapstructure:"server"`
	Auth        AuthConfig          `mapstructure:"auth"`
	Database    DatabaseConfig      `mapstructure:"database"`
	Redis       RedisConfig         `mapstructure:"redis"`
	Retrieval   RetrievalConfig     `mapstructure:"retrieval"`
	Idempotency IdempotencyConfig   `mapstructure:"idempotency"`
	Audit       AuditConfig         `mapstructure:"audit"`
	Rules       RulesConfig         `mapstructure:"rules"`
	Workflow    WorkflowConfig      `mapstructure:"workflow"`
	Build       BuildConfig         `mapstructure:"build"`
	Tenants     []TenantConfig      `mapstructure:"tenants"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	RequireAPIKey bool   `mapstructure:"require_api_key"`
	APIKey        string `mapstructure:"api_key"`
	AdminKey      string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RetrievalConfig 语义检索相关：embedding 服务与相似度搜索参数
type RetrievalConfig struct {
	Endpoint        string  `mapstructure:"endpoint"` // OpenAI 兼容的 embeddings API
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Dimensions      int     `mapstructure:"dimensions"`
	TopK            int     `mapstructure:"top_k"`
	SimilarityFloor float64 `mapstructure:"similarity_floor"`
	TimeoutMs       int     `mapstructure:"timeout_ms"`
	Retries         int     `mapstructure:"retries"`
}

func (c RetrievalConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type IdempotencyConfig struct {
	// reserved 条目的 TTL：持有者崩溃后同 key 请求最多等这么久
	ReservationTTLSeconds int `mapstructure:"reservation_ttl_seconds"`
	// completed 条目的保留窗口，过期后 key 可作为新请求复用
	RetentionHours int `mapstructure:"retention_hours"`
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

func (c IdempotencyConfig) ReservationTTL() time.Duration {
	if c.ReservationTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ReservationTTLSeconds) * time.Second
}

func (c IdempotencyConfig) Retention() time.Duration {
	if c.RetentionHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.RetentionHours) * time.Hour
}

func (c IdempotencyConfig) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

type AuditConfig struct {
	// 链尾 CAS 冲突时的重试次数
	AppendRetries int `mapstructure:"append_retries"`
	StreamBuffer  int `mapstructure:"stream_buffer"`
}

// RulesConfig 结构化规则引擎的命名排除清单，
// 如 rules.exclusion_lists.competitor_brands: ["CompetitorX", ...]
type RulesConfig struct {
	ExclusionLists map[string][]string `mapstructure:"exclusion_lists"`
}

// WorkflowConfig 按 violation_type 定制审批流与动作；未命中的类型用 default 值
type WorkflowConfig struct {
	Approvers       []string            `mapstructure:"approvers"`
	SLAHours        map[string]int      `mapstructure:"sla_hours"`
	DefaultSLAHours int                 `mapstructure:"default_sla_hours"`
	Actions         map[string][]string `mapstructure:"actions"`
	DefaultActions  []string            `mapstructure:"default_actions"`
}

type BuildConfig struct {
	GitCommit string `mapstructure:"git_commit"`
	BuildTime string `mapstructure:"build_time"`
}

type TenantConfig struct {
	ID     string  `mapstructure:"id"`
	Name   string  `mapstructure:"name"`
	APIKey string  `mapstructure:"api_key"`
	QPS    float64 `mapstructure:"qps"`
	Burst  int     `mapstructure:"burst"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. CONTRACTGUARD_DATABASE_DSN
	viper.SetEnvPrefix("contractguard")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.require_api_key", false)
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("retrieval.model", "text-embedding-3-small")
	viper.SetDefault("retrieval.dimensions", 1536)
	viper.SetDefault("retrieval.top_k", 5)
	viper.SetDefault("retrieval.similarity_floor", 0.78)
	viper.SetDefault("retrieval.timeout_ms", 2000)
	viper.SetDefault("retrieval.retries", 2)
	viper.SetDefault("idempotency.reservation_ttl_seconds", 30)
	viper.SetDefault("idempotency.retention_hours", 24)
	viper.SetDefault("idempotency.poll_interval_ms", 50)
	viper.SetDefault("audit.append_retries", 5)
	viper.SetDefault("audit.stream_buffer", 256)
	viper.SetDefault("workflow.approvers", []string{"legal_counsel", "compliance_officer"})
	viper.SetDefault("workflow.default_sla_hours", 72)
	viper.SetDefault("workflow.default_actions", []string{"notify compliance team"})
	viper.SetDefault("build.git_commit", "dev")
	viper.SetDefault("build.build_time", "unknown")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
