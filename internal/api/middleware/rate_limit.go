package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	RPS     float64 // 每秒允许的请求数（稳定速率）
	Burst   int     // 突发容量（桶的大小）
	// Hook 每次限流判定后回调（指标计数用），可为 nil
	Hook func(allowed bool)
}

// RateLimiter 基于Token Bucket的请求限流器。
// 串口命令严格串行，限流保护设备不被HTTP侧压垮。
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter 创建请求限流器
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 10 // 默认每秒10个请求
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Allow 检查是否允许请求（非阻塞）
func (l *RateLimiter) Allow() bool {
	return l.limiter.Allow()
}

// RateLimit 限流中间件：超出速率的请求返回429
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewRateLimiter(cfg.RPS, cfg.Burst)
	return func(c *gin.Context) {
		allowed := limiter.Allow()
		if cfg.Hook != nil {
			cfg.Hook(allowed)
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "请求过于频繁，请稍后重试",
			})
			return
		}
		c.Next()
	}
}
