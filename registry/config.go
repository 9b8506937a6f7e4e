package registry

import "time"

// Config Registry 组件配置
type Config struct {
	// Namespace Etcd Key 前缀，默认 "/beacon/services"
	Namespace string `yaml:"namespace" json:"namespace" mapstructure:"namespace"`

	// Scheme 注册到 gRPC resolver 的 scheme，默认 "beacon"
	Scheme string `yaml:"scheme" json:"scheme" mapstructure:"scheme"`

	// DefaultTTL 默认服务注册租约时长，默认 30s
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" mapstructure:"default_ttl"`

	// RetryInterval Watch 断开后的重连间隔，默认 1s
	RetryInterval time.Duration `yaml:"retry_interval" json:"retry_interval" mapstructure:"retry_interval"`

	// EnableCache 是否启用本地服务发现缓存，默认关闭
	EnableCache bool `yaml:"enable_cache" json:"enable_cache" mapstructure:"enable_cache"`

	// CacheExpiration 本地缓存过期时间，默认 10s
	CacheExpiration time.Duration `yaml:"cache_expiration" json:"cache_expiration" mapstructure:"cache_expiration"`
}

// setDefaults 填充缺省配置
func (c *Config) setDefaults() {
	if c.Namespace == "" {
		c.Namespace = "/beacon/services"
	}
	if c.Scheme == "" {
		c.Scheme = "beacon"
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = 30 * time.Second
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = time.Second
	}
	if c.CacheExpiration == 0 {
		c.CacheExpiration = 10 * time.Second
	}
}

// validate 验证配置
func (c *Config) validate() error {
	if c.DefaultTTL < 0 || c.DefaultTTL > 0 && c.DefaultTTL < time.Second {
		return ErrInvalidTTL
	}
	return nil
}
