package model

// RateLimitConfig 定义租户的限流规则
type RateLimitConfig struct {
	QPS   float64 `json:"qps"`   // 每秒查询数
	Burst int     `json:"burst"` // 突发桶大小
}

// Tenant 代表一个接入方（经纪公司、事务所、内部系统）
type Tenant struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	ApiKey string          `json:"api_key"` // 网关颁发给租户的 Access Key
	Rate   RateLimitConfig `json:"rate_limit"`
}
