// Package config loads runtime configuration for the LLM orchestration
// core: default values overridden by an optional YAML file, then by
// environment variables, mirroring the teacher's config.Loader
// precedence (defaults, then YAML file, then env).
package config

import "time"

// Config is the complete runtime configuration (§6).
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Log          LogConfig          `yaml:"log"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	LoadBalance  LoadBalanceConfig  `yaml:"load_balance"`
	TokenTracker TokenTrackerConfig `yaml:"token_tracker"`
	DiagramCache DiagramCacheConfig `yaml:"diagram_cache"`
	Providers    ProvidersConfig    `yaml:"providers"`
}

// ServerConfig carries listen ports and shutdown timing.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig configures the durable-store connection pool.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string        `yaml:"dsn" env:"DATABASE_DSN"`
	PoolSize        int           `yaml:"pool_size" env:"DATABASE_POOL_SIZE"`
	MaxOverflow     int           `yaml:"max_overflow" env:"DATABASE_MAX_OVERFLOW"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// RedisConfig configures the shared Redis connection used by the rate
// limiter and diagram cache.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"REDIS_ADDR"`
	Password     string `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int    `yaml:"db" env:"REDIS_DB"`
	PoolSize     int    `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// RateLimitConfig carries per-vendor QPM/concurrency ceilings (§6).
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" env:"DASHSCOPE_RATE_LIMITING_ENABLED"`

	DashscopeQPMLimit        int `yaml:"dashscope_qpm_limit" env:"DASHSCOPE_QPM_LIMIT"`
	DashscopeConcurrentLimit int `yaml:"dashscope_concurrent_limit" env:"DASHSCOPE_CONCURRENT_LIMIT"`

	KimiQPMLimit        int `yaml:"kimi_qpm_limit" env:"KIMI_QPM_LIMIT"`
	KimiConcurrentLimit int `yaml:"kimi_concurrent_limit" env:"KIMI_CONCURRENT_LIMIT"`

	DoubaoQPMLimit        int `yaml:"doubao_qpm_limit" env:"DOUBAO_QPM_LIMIT"`
	DoubaoConcurrentLimit int `yaml:"doubao_concurrent_limit" env:"DOUBAO_CONCURRENT_LIMIT"`

	DeepseekVolcengineQPMLimit        int `yaml:"deepseek_volcengine_qpm_limit" env:"DEEPSEEK_VOLCENGINE_QPM_LIMIT"`
	DeepseekVolcengineConcurrentLimit int `yaml:"deepseek_volcengine_concurrent_limit" env:"DEEPSEEK_VOLCENGINE_CONCURRENT_LIMIT"`
}

// LoadBalanceConfig selects and tunes the physical-model balancer.
type LoadBalanceConfig struct {
	Enabled             bool   `yaml:"enabled" env:"LOAD_BALANCING_ENABLED"`
	Strategy            string `yaml:"strategy" env:"LOAD_BALANCING_STRATEGY"` // weighted | round_robin | random
	RateLimitingEnabled bool   `yaml:"rate_limiting_enabled" env:"LOAD_BALANCING_RATE_LIMITING_ENABLED"`
	// Weights is a "physical=weight,physical=weight" list, e.g.
	// "deepseek=3,ark-deepseek=1", parsed by Load.
	Weights string `yaml:"weights" env:"LOAD_BALANCING_WEIGHTS"`
}

// TokenTrackerConfig tunes the usage-accounting batch writer.
type TokenTrackerConfig struct {
	Enabled       bool          `yaml:"enabled" env:"TOKEN_TRACKER_ENABLED"`
	BatchSize     int           `yaml:"batch_size" env:"TOKEN_TRACKER_BATCH_SIZE"`
	BatchInterval time.Duration `yaml:"batch_interval" env:"TOKEN_TRACKER_BATCH_INTERVAL"`
	MaxBufferSize int           `yaml:"max_buffer_size" env:"TOKEN_TRACKER_MAX_BUFFER_SIZE"`
}

// DiagramCacheConfig tunes the diagram cache's TTLs and quotas.
type DiagramCacheConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl" env:"DIAGRAM_CACHE_TTL"`
	SyncInterval  time.Duration `yaml:"sync_interval" env:"DIAGRAM_SYNC_INTERVAL"`
	SyncBatchSize int           `yaml:"sync_batch_size" env:"DIAGRAM_SYNC_BATCH_SIZE"`
	MaxPerUser    int           `yaml:"max_per_user" env:"DIAGRAM_MAX_PER_USER"`
	MaxSpecSizeKB int           `yaml:"max_spec_size_kb" env:"DIAGRAM_MAX_SPEC_SIZE_KB"`
}

// ProvidersConfig carries per-vendor API credentials and model names.
type ProvidersConfig struct {
	QwenAPIKey string `yaml:"qwen_api_key" env:"QWEN_API_KEY"`
	QwenModel  string `yaml:"qwen_model" env:"QWEN_MODEL"`

	DeepseekAPIKey string `yaml:"deepseek_api_key" env:"DEEPSEEK_API_KEY"`
	DeepseekModel  string `yaml:"deepseek_model" env:"DEEPSEEK_MODEL"`

	ArkAPIKey        string `yaml:"ark_api_key" env:"ARK_API_KEY"`
	ArkDeepseekModel string `yaml:"ark_deepseek_model" env:"ARK_DEEPSEEK_MODEL"` // Ark endpoint ID
	ArkKimiModel     string `yaml:"ark_kimi_model" env:"ARK_KIMI_MODEL"`
	ArkDoubaoModel   string `yaml:"ark_doubao_model" env:"ARK_DOUBAO_MODEL"`
}

// DefaultConfig returns the documented defaults (§6).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "thinkmap.db",
			PoolSize:        15,
			MaxOverflow:     30,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:                           true,
			DashscopeQPMLimit:                 200,
			DashscopeConcurrentLimit:          50,
			KimiQPMLimit:                      200,
			KimiConcurrentLimit:               50,
			DoubaoQPMLimit:                    200,
			DoubaoConcurrentLimit:             50,
			DeepseekVolcengineQPMLimit:        200,
			DeepseekVolcengineConcurrentLimit: 50,
		},
		LoadBalance: LoadBalanceConfig{
			Enabled:             true,
			Strategy:            "round_robin",
			RateLimitingEnabled: true,
		},
		TokenTracker: TokenTrackerConfig{
			Enabled:       true,
			BatchSize:     1000,
			BatchInterval: 300 * time.Second,
			MaxBufferSize: 10000,
		},
		DiagramCache: DiagramCacheConfig{
			CacheTTL:      604800 * time.Second,
			SyncInterval:  300 * time.Second,
			SyncBatchSize: 100,
			MaxPerUser:    20,
			MaxSpecSizeKB: 500,
		},
	}
}
