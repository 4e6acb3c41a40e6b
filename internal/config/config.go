package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config 聚合运行时配置，通过 DIANPING_ 前缀的环境变量注入。
type Config struct {
	HTTPAddr string `default:":8080" envconfig:"HTTP_ADDR"`
	DBPath   string `default:"dianping.db" envconfig:"DB_PATH"`

	RedisAddr string `default:"localhost:6379" envconfig:"REDIS_ADDR"`
	RedisDB   int    `default:"0" envconfig:"REDIS_DB"`

	// 秒杀落库队列容量：满即背压拒绝，防止无界堆积
	OrderQueueSize int `default:"4096" envconfig:"ORDER_QUEUE_SIZE"`

	// 秒杀接口限流
	SeckillRateLimit  int           `default:"1000" envconfig:"SECKILL_RATE_LIMIT"`
	SeckillRateWindow time.Duration `default:"1s" envconfig:"SECKILL_RATE_WINDOW"`

	// 管理接口的简单管理员令牌（demo 级别保护）
	AdminToken string `default:"dev-admin-token" envconfig:"ADMIN_TOKEN"`

	// 停机时排空落库队列的时间预算
	ShutdownTimeout time.Duration `default:"10s" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("DIANPING", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.OrderQueueSize <= 0 {
		return Config{}, fmt.Errorf("ORDER_QUEUE_SIZE must be > 0")
	}
	if cfg.SeckillRateLimit <= 0 {
		return Config{}, fmt.Errorf("SECKILL_RATE_LIMIT must be > 0")
	}
	if cfg.SeckillRateWindow <= 0 {
		return Config{}, fmt.Errorf("SECKILL_RATE_WINDOW must be > 0")
	}
	return cfg, nil
}
